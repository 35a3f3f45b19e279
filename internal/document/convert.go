package document

import (
	"context"

	"github.com/jpl-au/quill/internal/convert"
	"github.com/jpl-au/quill/internal/failure"
)

// Convert runs a conversion and waits for it. A failed task is returned
// together with its error so callers can show the attempts.
func (s *Service) Convert(ctx context.Context, req convert.Request) (convert.Task, error) {
	return s.pipeline.Convert(ctx, req)
}

// Schedule queues a conversion.
func (s *Service) Schedule(ctx context.Context, req convert.Request) (convert.Task, error) {
	return s.pipeline.Schedule(ctx, req)
}

// Task returns a task by id.
func (s *Service) Task(_ context.Context, id string) (convert.Task, error) {
	t, ok := s.pipeline.Get(id)
	if !ok {
		return convert.Task{}, failure.Validation(failure.CodeNotFound, "unknown task").
			With("task", id).
			Wrap(convert.ErrUnknownTask)
	}
	return t, nil
}

// Tasks lists known tasks, oldest first.
func (s *Service) Tasks(_ context.Context) ([]convert.Task, error) {
	return s.pipeline.List(), nil
}

// Wait blocks until a task finishes.
func (s *Service) Wait(ctx context.Context, id string) (convert.Task, error) {
	return s.pipeline.Wait(ctx, id)
}

// Cancel stops a queued or running task.
func (s *Service) Cancel(_ context.Context, id string) error {
	return s.pipeline.Cancel(id)
}

// OutputPath returns where a document's artifact in format f is written.
func (s *Service) OutputPath(doc string, f convert.Format) string {
	return s.pipeline.OutputPath(doc, f)
}
