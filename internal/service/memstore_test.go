package service

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/yakoovad/flowboard/internal/model"
	"github.com/yakoovad/flowboard/internal/repository"
)

// memStore is an in-memory stand-in for PostgreSQL. Transactions are fully
// serialized and never roll back.
type memStore struct {
	txMu sync.Mutex
	mu   sync.Mutex

	seq      int64
	users    map[int64]*repository.User
	teams    map[int64]*repository.Team
	members  map[[2]int64]bool
	projects map[int64]*repository.Project
	issues   map[int64]*repository.Issue
}

type memTxKey struct{}

func newMemStore() *memStore {
	return &memStore{
		users:    map[int64]*repository.User{},
		teams:    map[int64]*repository.Team{},
		members:  map[[2]int64]bool{},
		projects: map[int64]*repository.Project{},
		issues:   map[int64]*repository.Issue{},
	}
}

func (s *memStore) WithinTransaction(ctx context.Context, fn func(context.Context) error) error {
	if ctx.Value(memTxKey{}) != nil {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	return fn(context.WithValue(ctx, memTxKey{}, true))
}

func (s *memStore) nextID() int64 {
	s.seq++
	return s.seq
}

func (s *memStore) activeUser(id int64) (*repository.User, bool) {
	u, ok := s.users[id]
	if !ok || u.IsDeleted {
		return nil, false
	}
	return u, true
}

func (s *memStore) activeProject(id int64) (*repository.Project, bool) {
	p, ok := s.projects[id]
	if !ok || p.IsDeleted {
		return nil, false
	}
	return p, true
}

func (s *memStore) activeIssue(id int64) (*repository.Issue, bool) {
	i, ok := s.issues[id]
	if !ok || i.IsDeleted {
		return nil, false
	}
	return i, true
}

func (s *memStore) userRepo() *memUserRepo { return &memUserRepo{s} }
func (s *memStore) teamRepo() *memTeamRepo { return &memTeamRepo{s} }
func (s *memStore) projectRepo() *memProjectRepo { return &memProjectRepo{s} }
func (s *memStore) issueRepo() *memIssueRepo { return &memIssueRepo{s} }
func (s *memStore) dashboardRepo() *memDashboardRepo { return &memDashboardRepo{s} }

type memUserRepo struct{ *memStore }

func (r *memUserRepo) Create(_ context.Context, user *repository.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.users {
		if !u.IsDeleted && strings.EqualFold(u.Email, user.Email) {
			return repository.ErrAlreadyExists
		}
	}

	user.ID = r.nextID()
	user.CreatedAt = time.Now()
	stored := *user
	r.users[user.ID] = &stored
	return nil
}

func (r *memUserRepo) Get(_ context.Context, userID int64) (*repository.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.activeUser(userID)
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *memUserRepo) GetByEmail(_ context.Context, email string) (*repository.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.users {
		if !u.IsDeleted && strings.ToLower(u.Email) == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memUserRepo) GetByResetToken(_ context.Context, token string, now time.Time) (*repository.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.users {
		if !u.IsDeleted && u.ResetToken != nil && *u.ResetToken == token && u.ResetExpiry != nil && u.ResetExpiry.After(now) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memUserRepo) Patch(_ context.Context, patch *repository.UserPatch) (*repository.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.activeUser(patch.ID)
	if !ok {
		return nil, repository.ErrNotFound
	}
	if patch.Username != nil {
		u.Username = *patch.Username
	}
	if patch.Email != nil {
		u.Email = *patch.Email
	}
	if patch.PasswordHash != nil {
		u.PasswordHash = *patch.PasswordHash
	}
	if patch.FirstName != nil {
		u.FirstName = *patch.FirstName
	}
	if patch.LastName != nil {
		u.LastName = *patch.LastName
	}
	if patch.Role != nil {
		u.Role = *patch.Role
	}
	if patch.AvatarURL != nil {
		u.AvatarURL = patch.AvatarURL
	}
	switch {
	case patch.ClearResetToken:
		u.ResetToken, u.ResetExpiry = nil, nil
	case patch.ResetToken != nil:
		u.ResetToken, u.ResetExpiry = patch.ResetToken, patch.ResetExpiry
	}

	cp := *u
	return &cp, nil
}

func (r *memUserRepo) List(ctx context.Context) ([]*repository.User, error) {
	return r.Search(ctx, "")
}

func (r *memUserRepo) Search(_ context.Context, term string) ([]*repository.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	term = strings.ToLower(term)
	res := make([]*repository.User, 0)
	for _, u := range r.users {
		if u.IsDeleted {
			continue
		}
		hay := strings.ToLower(u.FirstName + " " + u.LastName + "\n" + u.Username + "\n" + u.Email)
		if strings.Contains(hay, term) {
			cp := *u
			res = append(res, &cp)
		}
	}
	slices.SortFunc(res, func(a, b *repository.User) int { return cmp.Compare(a.ID, b.ID) })
	return res, nil
}

type memTeamRepo struct{ *memStore }

func (r *memTeamRepo) Create(_ context.Context, team *repository.Team) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.activeUser(team.LeadID); !ok {
		return repository.ErrNotFound
	}

	team.ID = r.nextID()
	team.CreatedAt = time.Now()
	stored := *team
	r.teams[team.ID] = &stored
	return nil
}

func (r *memTeamRepo) Get(_ context.Context, teamID int64) (*repository.Team, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.teams[teamID]
	if !ok || t.IsDeleted {
		return nil, repository.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (r *memTeamRepo) Patch(ctx context.Context, patch *repository.TeamPatch) (*repository.Team, error) {
	r.mu.Lock()
	t, ok := r.teams[patch.ID]
	if ok && !t.IsDeleted && patch.Name != nil {
		t.Name = *patch.Name
	}
	r.mu.Unlock()

	return r.Get(ctx, patch.ID)
}

func (r *memTeamRepo) SoftDelete(_ context.Context, teamID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.teams[teamID]
	if !ok || t.IsDeleted {
		return repository.ErrNotFound
	}
	t.IsDeleted = true
	return nil
}

func (r *memTeamRepo) ListForUser(_ context.Context, userID int64) ([]*repository.Team, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	res := make([]*repository.Team, 0)
	for id, t := range r.teams {
		if !t.IsDeleted && r.members[[2]int64{id, userID}] {
			cp := *t
			res = append(res, &cp)
		}
	}
	slices.SortFunc(res, func(a, b *repository.Team) int { return cmp.Compare(a.ID, b.ID) })
	return res, nil
}

func (r *memTeamRepo) AddMember(_ context.Context, teamID, userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.teams[teamID]; !ok {
		return repository.ErrNotFound
	}
	if _, ok := r.users[userID]; !ok {
		return repository.ErrNotFound
	}
	r.members[[2]int64{teamID, userID}] = true
	return nil
}

func (r *memTeamRepo) RemoveMember(_ context.Context, teamID, userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := [2]int64{teamID, userID}
	if !r.members[key] {
		return repository.ErrNotFound
	}
	delete(r.members, key)
	return nil
}

func (r *memTeamRepo) IsMember(_ context.Context, teamID, userID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.members[[2]int64{teamID, userID}], nil
}

func (r *memTeamRepo) GetTeamMembers(_ context.Context, teamID int64) ([]*repository.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	res := make([]*repository.User, 0)
	for key := range r.members {
		if key[0] != teamID {
			continue
		}
		if u, ok := r.activeUser(key[1]); ok {
			cp := *u
			res = append(res, &cp)
		}
	}
	slices.SortFunc(res, func(a, b *repository.User) int { return cmp.Compare(a.ID, b.ID) })
	return res, nil
}

type memProjectRepo struct{ *memStore }

func (r *memProjectRepo) Create(_ context.Context, project *repository.Project) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.teams[project.TeamID]; !ok {
		return repository.ErrNotFound
	}

	project.ID = r.nextID()
	project.CreatedAt = time.Now()
	stored := *project
	r.projects[project.ID] = &stored
	return nil
}

func (r *memProjectRepo) Get(_ context.Context, projectID int64) (*repository.Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.activeProject(projectID)
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *memProjectRepo) Patch(ctx context.Context, patch *repository.ProjectPatch) (*repository.Project, error) {
	r.mu.Lock()
	if p, ok := r.activeProject(patch.ID); ok {
		if patch.Name != nil {
			p.Name = *patch.Name
		}
		if patch.Description != nil {
			p.Description = patch.Description
		}
		if patch.Status != nil {
			p.Status = *patch.Status
		}
	}
	r.mu.Unlock()

	return r.Get(ctx, patch.ID)
}

func (r *memProjectRepo) SoftDelete(_ context.Context, projectID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.activeProject(projectID)
	if !ok {
		return repository.ErrNotFound
	}
	p.IsDeleted = true
	return nil
}

func (r *memProjectRepo) ListForUser(_ context.Context, userID int64, nameTerm string) ([]*repository.Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	res := make([]*repository.Project, 0)
	for _, p := range r.projects {
		t := r.teams[p.TeamID]
		if p.IsDeleted || t == nil || t.IsDeleted || !r.members[[2]int64{t.ID, userID}] {
			continue
		}
		if nameTerm != "" && !strings.Contains(strings.ToLower(p.Name), strings.ToLower(nameTerm)) {
			continue
		}
		cp := *p
		res = append(res, &cp)
	}
	slices.SortFunc(res, func(a, b *repository.Project) int { return cmp.Compare(a.ID, b.ID) })
	return res, nil
}

func (r *memProjectRepo) IssueTallies(_ context.Context, projectIDs []int64) (map[int64]model.IssueTally, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tallies := make(map[int64]model.IssueTally, len(projectIDs))
	for _, i := range r.issues {
		if i.IsDeleted || !slices.Contains(projectIDs, i.ProjectID) {
			continue
		}
		tally := tallies[i.ProjectID]
		tally.Total++
		if i.Status == model.IssueStatusDone {
			tally.Done++
		}
		tallies[i.ProjectID] = tally
	}
	return tallies, nil
}

// Lock only checks existence; transactions are already serialized.
func (r *memProjectRepo) Lock(_ context.Context, projectID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.activeProject(projectID); !ok {
		return repository.ErrNotFound
	}
	return nil
}

type memIssueRepo struct{ *memStore }

func (r *memIssueRepo) Create(_ context.Context, issue *repository.Issue) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.projects[issue.ProjectID]; !ok {
		return repository.ErrNotFound
	}
	if _, ok := r.users[issue.ReporterID]; !ok {
		return repository.ErrNotFound
	}
	if issue.AssigneeID != nil {
		if _, ok := r.users[*issue.AssigneeID]; !ok {
			return repository.ErrNotFound
		}
	}

	issue.ID = r.nextID()
	issue.CreatedAt = time.Now()
	stored := *issue
	r.issues[issue.ID] = &stored
	return nil
}

func (r *memIssueRepo) Get(_ context.Context, issueID int64) (*repository.Issue, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i, ok := r.activeIssue(issueID)
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *i
	return &cp, nil
}

func (r *memIssueRepo) ref(id *int64) *repository.UserRef {
	if id == nil {
		return nil
	}
	u, ok := r.activeUser(*id)
	if !ok {
		return nil
	}
	return &repository.UserRef{ID: u.ID, FirstName: u.FirstName, LastName: u.LastName, Email: u.Email, AvatarURL: u.AvatarURL}
}

func (r *memIssueRepo) view(i *repository.Issue) (*repository.IssueView, bool) {
	if i.IsDeleted {
		return nil, false
	}
	p, ok := r.activeProject(i.ProjectID)
	if !ok {
		return nil, false
	}
	reporter := i.ReporterID
	return &repository.IssueView{
		Issue:       *i,
		ProjectName: p.Name,
		Assignee:    r.ref(i.AssigneeID),
		Reporter:    r.ref(&reporter),
	}, true
}

func (r *memIssueRepo) GetView(_ context.Context, issueID int64) (*repository.IssueView, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i, ok := r.issues[issueID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	v, ok := r.view(i)
	if !ok {
		return nil, repository.ErrNotFound
	}
	return v, nil
}

func (r *memIssueRepo) Find(_ context.Context, filter model.IssueFilter) ([]*repository.IssueView, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	res := make([]*repository.IssueView, 0)
	for _, i := range r.issues {
		switch {
		case filter.ProjectID != nil && i.ProjectID != *filter.ProjectID,
			filter.AssigneeID != nil && (i.AssigneeID == nil || *i.AssigneeID != *filter.AssigneeID),
			filter.Status != nil && i.Status != *filter.Status,
			filter.Title != "" && !strings.Contains(strings.ToLower(i.Title), strings.ToLower(filter.Title)):
			continue
		}
		if v, ok := r.view(i); ok {
			res = append(res, v)
		}
	}
	slices.SortFunc(res, func(a, b *repository.IssueView) int {
		return cmp.Or(
			cmp.Compare(a.ProjectID, b.ProjectID),
			cmp.Compare(a.Status, b.Status),
			cmp.Compare(a.Position, b.Position),
			cmp.Compare(a.ID, b.ID),
		)
	})
	return res, nil
}

func (r *memIssueRepo) Update(_ context.Context, issue *repository.Issue) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	i, ok := r.activeIssue(issue.ID)
	if !ok {
		return repository.ErrNotFound
	}
	if issue.AssigneeID != nil {
		if _, ok := r.users[*issue.AssigneeID]; !ok {
			return repository.ErrNotFound
		}
	}
	i.Title = issue.Title
	i.Description = issue.Description
	i.AssigneeID = issue.AssigneeID
	i.DueDate = issue.DueDate
	i.EstimatedHours = issue.EstimatedHours
	return nil
}

func (r *memIssueRepo) SetStatus(_ context.Context, issueID int64, status model.IssueStatus, completedAt *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	i, ok := r.activeIssue(issueID)
	if !ok {
		return repository.ErrNotFound
	}
	i.Status = status
	i.CompletedAt = completedAt
	return nil
}

func (r *memIssueRepo) SoftDelete(_ context.Context, issueID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	i, ok := r.activeIssue(issueID)
	if !ok {
		return repository.ErrNotFound
	}
	i.IsDeleted = true
	return nil
}

func (r *memIssueRepo) column(projectID int64, status model.IssueStatus) []*repository.Issue {
	col := make([]*repository.Issue, 0)
	for _, i := range r.issues {
		if !i.IsDeleted && i.ProjectID == projectID && i.Status == status {
			col = append(col, i)
		}
	}
	slices.SortFunc(col, func(a, b *repository.Issue) int {
		return cmp.Or(cmp.Compare(a.Position, b.Position), cmp.Compare(a.ID, b.ID))
	})
	return col
}

func (r *memIssueRepo) CountInColumn(_ context.Context, projectID int64, status model.IssueStatus) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.column(projectID, status)), nil
}

func (r *memIssueRepo) ColumnIDs(_ context.Context, projectID int64, status model.IssueStatus) ([]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	col := r.column(projectID, status)
	ids := make([]int64, 0, len(col))
	for _, i := range col {
		ids = append(ids, i.ID)
	}
	return ids, nil
}

func (r *memIssueRepo) Reposition(_ context.Context, ids []int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for pos, id := range ids {
		if i, ok := r.issues[id]; ok {
			i.Position = pos
		}
	}
	return nil
}

type memDashboardRepo struct{ *memStore }

func (r *memDashboardRepo) CountAssigned(_ context.Context, userID int64, dueBy time.Time) (repository.AssigneeCounts, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var c repository.AssigneeCounts
	for _, i := range r.issues {
		if i.IsDeleted || i.AssigneeID == nil || *i.AssigneeID != userID {
			continue
		}
		if _, ok := r.activeProject(i.ProjectID); !ok {
			continue
		}
		if i.Status == model.IssueStatusDone {
			c.Completed++
			continue
		}
		c.Open++
		if i.DueDate != nil && !i.DueDate.After(dueBy) {
			c.DueSoon++
		}
	}
	return c, nil
}

func (r *memDashboardRepo) CountProjects(_ context.Context, userID int64) (int, error) {
	projects, err := r.projectRepo().ListForUser(context.Background(), userID, "")
	return len(projects), err
}

func (r *memDashboardRepo) RecentOpen(_ context.Context, userID int64, limit int) ([]*repository.IssueView, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	res := make([]*repository.IssueView, 0)
	for _, i := range r.issues {
		if i.AssigneeID == nil || *i.AssigneeID != userID || i.Status == model.IssueStatusDone {
			continue
		}
		if v, ok := (&memIssueRepo{r.memStore}).view(i); ok {
			res = append(res, v)
		}
	}
	slices.SortFunc(res, func(a, b *repository.IssueView) int {
		return cmp.Or(b.CreatedAt.Compare(a.CreatedAt), cmp.Compare(b.ID, a.ID))
	})
	if len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}

// services wires every service onto one memStore.
type services struct {
	store     *memStore
	users     *UserService
	teams     *TeamService
	projects  *ProjectService
	issues    *IssueService
	dashboard *DashboardService
}

func newMemServices(now func() time.Time) *services {
	s := newMemStore()
	return &services{
		store: s,
		users: NewUserService(s).
			WithUserRepo(s.userRepo()).
			WithClock(now),
		teams: NewTeamService(s).
			WithUserRepo(s.userRepo()).
			WithTeamRepo(s.teamRepo()),
		projects: NewProjectService(s).
			WithTeamRepo(s.teamRepo()).
			WithProjectRepo(s.projectRepo()),
		issues: NewIssueService(s).
			WithTeamRepo(s.teamRepo()).
			WithProjectRepo(s.projectRepo()).
			WithIssueRepo(s.issueRepo()).
			WithClock(now),
		dashboard: NewDashboardService().
			WithDashboardRepo(s.dashboardRepo()).
			WithClock(now),
	}
}

// seedUser inserts a user directly, bypassing password hashing.
func (s *services) seedUser(first, last string, role model.Role) int64 {
	u := &repository.User{
		Username:  strings.ToLower(first),
		Email:     strings.ToLower(first) + "@example.com",
		FirstName: first,
		LastName:  last,
		Role:      role,
	}
	_ = s.store.userRepo().Create(context.Background(), u)
	return u.ID
}
