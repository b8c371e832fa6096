package tasks

import (
	"context"
	"log/slog"

	"github.com/lysyi3m/rss-offline/app/convert"
	"github.com/lysyi3m/rss-offline/app/msglog"
)

// ConvertFeedTask runs the converter once per configured format for a
// finished feed index.
type ConvertFeedTask struct {
	Task
	converter *convert.Converter
	indexFile string
	formats   []string
	log       *msglog.Log

	Outputs []string
}

func NewConvertFeedTask(feedName string, converter *convert.Converter, indexFile string, formats []string, log *msglog.Log) *ConvertFeedTask {
	return &ConvertFeedTask{
		Task:      NewTask(TaskTypeConvertFeed, feedName),
		converter: converter,
		indexFile: indexFile,
		formats:   formats,
		log:       log,
	}
}

func (t *ConvertFeedTask) Execute(ctx context.Context) error {
	failed := 0
	for _, format := range t.formats {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		out, err := t.converter.Convert(ctx, t.indexFile, t.FeedName, format)
		if err != nil {
			failed++
			t.log.Err("Couldn't convert %s to %s: %v", t.FeedName, format, err)
			continue
		}
		t.Outputs = append(t.Outputs, out)
	}

	slog.Info("Task completed",
		"type", string(t.Type),
		"feed", t.FeedName,
		"duration", t.GetDuration(),
		"converted", len(t.Outputs),
		"failed", failed)

	return nil
}
