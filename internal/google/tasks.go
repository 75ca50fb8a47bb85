package google

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/api/tasks/v1"
)

// Task is one item of a task list.
type Task struct {
	ID     string
	Title  string
	Notes  string
	Due    string
	Status string
}

// DefaultList returns the id of the first task list, usually "My Tasks".
func (c *Client) DefaultList(ctx context.Context) (string, error) {
	res, err := c.tasks.Tasklists.List().MaxResults(10).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("list task lists: %w", err)
	}
	if len(res.Items) == 0 {
		return "", ErrNoTaskList
	}
	return res.Items[0].Id, nil
}

func (c *Client) listOrDefault(ctx context.Context, list string) (string, error) {
	if list != "" {
		return list, nil
	}
	return c.DefaultList(ctx)
}

// CreateList creates a task list and returns its id.
func (c *Client) CreateList(ctx context.Context, title string) (string, error) {
	if title == "" {
		title = "New List"
	}
	l, err := c.tasks.Tasklists.Insert(&tasks.TaskList{Title: title}).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("create task list: %w", err)
	}
	return l.Id, nil
}

// CreateTask adds a task to list, or to the default list when list is empty.
// due is RFC 3339 or empty.
func (c *Client) CreateTask(ctx context.Context, list, title, notes, due string) (Task, error) {
	list, err := c.listOrDefault(ctx, list)
	if err != nil {
		return Task{}, err
	}
	if title == "" {
		title = "New Task"
	}
	t := &tasks.Task{Title: title, Notes: notes, Due: due}
	created, err := c.tasks.Tasks.Insert(list, t).Context(ctx).Do()
	if err != nil {
		return Task{}, fmt.Errorf("create task: %w", err)
	}
	return toTask(created), nil
}

// Tasks lists up to max tasks of list. Completed tasks are only shown when
// completed is true, in which case pending ones are left out.
func (c *Client) Tasks(ctx context.Context, list string, max int64, completed bool) ([]Task, error) {
	list, err := c.listOrDefault(ctx, list)
	if err != nil {
		return nil, err
	}
	if max <= 0 {
		max = 10
	}
	res, err := c.tasks.Tasks.List(list).
		MaxResults(max).
		ShowCompleted(completed).
		ShowHidden(completed).
		ShowDeleted(false).
		Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	out := make([]Task, 0, len(res.Items))
	for _, t := range res.Items {
		if completed && t.Status != "completed" {
			continue
		}
		out = append(out, toTask(t))
	}
	return out, nil
}

// ModifyTask applies action to a task: complete, uncomplete, delete,
// postpone (value is the new due date) or update_title.
func (c *Client) ModifyTask(ctx context.Context, action, list, id, value string) error {
	if id == "" {
		return fmt.Errorf("%w: task id", ErrMissingArgument)
	}
	list, err := c.listOrDefault(ctx, list)
	if err != nil {
		return err
	}

	action = strings.ToLower(action)
	if action == "delete" {
		if err := c.tasks.Tasks.Delete(list, id).Context(ctx).Do(); err != nil {
			return fmt.Errorf("delete task: %w", err)
		}
		return nil
	}

	patch := &tasks.Task{}
	switch action {
	case "complete":
		patch.Status = "completed"
	case "uncomplete":
		patch.Status = "needsAction"
		patch.NullFields = []string{"Completed"}
	case "postpone":
		if value == "" {
			return fmt.Errorf("%w: due date", ErrMissingArgument)
		}
		patch.Due = value
	case "update_title":
		if value == "" {
			return fmt.Errorf("%w: title", ErrMissingArgument)
		}
		patch.Title = value
	default:
		return fmt.Errorf("%w: %s", ErrUnknownAction, action)
	}

	if _, err := c.tasks.Tasks.Patch(list, id, patch).Context(ctx).Do(); err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	return nil
}

func toTask(t *tasks.Task) Task {
	return Task{ID: t.Id, Title: t.Title, Notes: t.Notes, Due: t.Due, Status: t.Status}
}
