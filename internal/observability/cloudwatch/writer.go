// Package cloudwatch ships pipeline log lines to CloudWatch Logs.
//
// A pipeline run is short-lived, so lines are buffered in memory and sent
// in batches when the writer is closed at the end of the run.
package cloudwatch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"
)

// PutLogEvents limits: 10,000 events and 1,048,576 bytes per call, where
// each event costs its message size plus 26 bytes.
const (
	maxBatchEvents   = 10000
	maxBatchBytes    = 1048576
	perEventOverhead = 26
	flushTimeout     = 30 * time.Second
)

// LogsAPI is the subset of the CloudWatch Logs client used by Writer.
type LogsAPI interface {
	CreateLogGroup(ctx context.Context, params *cloudwatchlogs.CreateLogGroupInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.CreateLogGroupOutput, error)
	CreateLogStream(ctx context.Context, params *cloudwatchlogs.CreateLogStreamInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.CreateLogStreamOutput, error)
	PutLogEvents(ctx context.Context, params *cloudwatchlogs.PutLogEventsInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.PutLogEventsOutput, error)
}

// Writer is an io.WriteCloser that collects log lines and sends them to a
// CloudWatch log stream on Close. Every line is also written to mirror,
// when set, so the console keeps its output.
type Writer struct {
	client    LogsAPI
	logGroup  string
	logStream string
	mirror    io.Writer
	now       func() time.Time

	mu     sync.Mutex
	events []types.InputLogEvent
	closed bool
}

// NewWriter creates a Writer for the given group and stream.
func NewWriter(client LogsAPI, logGroup, logStream string, mirror io.Writer) *Writer {
	return &Writer{
		client:    client,
		logGroup:  logGroup,
		logStream: logStream,
		mirror:    mirror,
		now:       time.Now,
	}
}

// StreamName builds a log stream name unique to one run.
func StreamName(serviceName, runID string) string {
	return fmt.Sprintf("%s/%s/%s", serviceName, time.Now().UTC().Format("2006/01/02"), runID)
}

// Write buffers one log line. A single call may carry several
// newline-separated lines.
func (w *Writer) Write(p []byte) (int, error) {
	if w.mirror != nil {
		if _, err := w.mirror.Write(p); err != nil {
			return 0, err
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return 0, errors.New("cloudwatch writer is closed")
	}

	ts := w.now().UnixMilli()
	for _, line := range bytes.Split(p, []byte("\n")) {
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		w.events = append(w.events, types.InputLogEvent{
			Message:   aws.String(string(line)),
			Timestamp: aws.Int64(ts),
		})
	}

	return len(p), nil
}

// Close ensures the group and stream exist and sends every buffered line.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	if len(w.events) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()

	if err := w.ensureLogGroup(ctx); err != nil {
		return err
	}
	if err := w.ensureLogStream(ctx); err != nil {
		return err
	}

	for _, batch := range batches(w.events) {
		_, err := w.client.PutLogEvents(ctx, &cloudwatchlogs.PutLogEventsInput{
			LogGroupName:  aws.String(w.logGroup),
			LogStreamName: aws.String(w.logStream),
			LogEvents:     batch,
		})
		if err != nil {
			return fmt.Errorf("failed to put log events: %w", err)
		}
	}

	w.events = nil
	return nil
}

// ensureLogGroup creates the log group if it doesn't exist
func (w *Writer) ensureLogGroup(ctx context.Context) error {
	_, err := w.client.CreateLogGroup(ctx, &cloudwatchlogs.CreateLogGroupInput{
		LogGroupName: aws.String(w.logGroup),
	})
	if err != nil {
		var alreadyExists *types.ResourceAlreadyExistsException
		if errors.As(err, &alreadyExists) {
			return nil
		}
		return fmt.Errorf("failed to create log group: %w", err)
	}
	return nil
}

// ensureLogStream creates the log stream if it doesn't exist
func (w *Writer) ensureLogStream(ctx context.Context) error {
	_, err := w.client.CreateLogStream(ctx, &cloudwatchlogs.CreateLogStreamInput{
		LogGroupName:  aws.String(w.logGroup),
		LogStreamName: aws.String(w.logStream),
	})
	if err != nil {
		var alreadyExists *types.ResourceAlreadyExistsException
		if errors.As(err, &alreadyExists) {
			return nil
		}
		return fmt.Errorf("failed to create log stream: %w", err)
	}
	return nil
}

// batches splits events so that each slice respects the PutLogEvents limits.
func batches(events []types.InputLogEvent) [][]types.InputLogEvent {
	var out [][]types.InputLogEvent
	start, size := 0, 0

	for i, ev := range events {
		cost := len(aws.ToString(ev.Message)) + perEventOverhead
		if i > start && (i-start >= maxBatchEvents || size+cost > maxBatchBytes) {
			out = append(out, events[start:i])
			start, size = i, 0
		}
		size += cost
	}
	if start < len(events) {
		out = append(out, events[start:])
	}

	return out
}
