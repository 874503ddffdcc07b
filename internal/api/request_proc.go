package api

import (
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/yakoovad/flowboard/internal/model"
)

func ProcessRequest[T any](e echo.Context, req *T, steps ...func(echo.Context, *T) error) error {
	for _, step := range steps {
		if err := step(e, req); err != nil {
			return err
		}
	}
	return nil
}

func queryInt64(e echo.Context, name string) (*int64, error) {
	raw := strings.TrimSpace(e.QueryParam(name))
	if raw == "" {
		return nil, nil
	}

	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v <= 0 {
		return nil, errors.Errorf("invalid %s %q", name, raw)
	}
	return &v, nil
}

func filterProject(e echo.Context, f *model.IssueFilter) (err error) {
	f.ProjectID, err = queryInt64(e, "project_id")
	return err
}

func filterAssignee(e echo.Context, f *model.IssueFilter) (err error) {
	f.AssigneeID, err = queryInt64(e, "assignee_id")
	return err
}

func filterStatus(e echo.Context, f *model.IssueFilter) error {
	raw := e.QueryParam("status")
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	status, err := model.ParseIssueStatus(raw)
	if err != nil {
		return err
	}
	f.Status = &status
	return nil
}

func filterTitle(e echo.Context, f *model.IssueFilter) error {
	f.Title = strings.TrimSpace(e.QueryParam("title"))
	return nil
}
