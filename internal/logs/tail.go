// Package logs reads back the daemon's log file for the CLI. It
// supports "last N lines" with bounded memory and a polling follow
// mode that resumes from a byte offset.
package logs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"glint/internal/config"
)

// File returns the path of the daemon log inside the configured log
// directory.
func File(cfg *config.Config) string {
	return filepath.Join(cfg.Paths.LogDir, "glint.log")
}

// Options control one Tail call. A negative Offset means "start from
// the last Limit lines"; otherwise reading resumes at Offset.
type Options struct {
	Offset int64
	Limit  int
	Follow bool
	// Wait bounds how long a follow call blocks for new lines.
	Wait time.Duration
}

// Result carries the lines read and the offset to resume from.
type Result struct {
	Lines  []string
	Offset int64
}

const (
	scannerBufferSize = 1024 * 1024
	followPollEvery   = 250 * time.Millisecond
)

// Tail reads from the log file at path. A missing file is not an
// error; it yields no lines and offset zero so a follow loop can pick
// the file up once the daemon creates it.
func Tail(ctx context.Context, path string, opts Options) (Result, error) {
	result := Result{Offset: opts.Offset}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			result.Offset = 0
			return result, nil
		}
		return result, fmt.Errorf("stat log file: %w", err)
	}
	if info.IsDir() {
		return result, fmt.Errorf("log path %q is a directory", path)
	}
	if opts.Wait < 0 {
		opts.Wait = 0
	}

	if opts.Offset < 0 {
		lines, offset, err := lastLines(path, opts.Limit)
		if err != nil {
			return result, err
		}
		result.Lines = lines
		result.Offset = offset
	} else {
		offset := opts.Offset
		if offset > info.Size() {
			offset = info.Size()
		}
		lines, newOffset, err := readFrom(path, offset)
		if err != nil {
			return result, err
		}
		result.Lines = lines
		result.Offset = newOffset
	}

	if opts.Follow && opts.Wait > 0 && len(result.Lines) == 0 {
		return awaitLines(ctx, path, result.Offset, opts.Wait)
	}
	return result, nil
}

// lastLines returns up to limit trailing lines plus the end-of-file
// offset. It keeps a fixed-size ring so huge logs stay cheap to tail.
func lastLines(path string, limit int) ([]string, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	if limit <= 0 {
		end, err := file.Seek(0, io.SeekEnd)
		if err != nil {
			return nil, 0, fmt.Errorf("seek log file: %w", err)
		}
		return nil, end, nil
	}

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), scannerBufferSize)

	ring := make([]string, limit)
	count, idx := 0, 0
	for scanner.Scan() {
		ring[idx] = scanner.Text()
		idx = (idx + 1) % limit
		if count < limit {
			count++
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, fmt.Errorf("read log file: %w", err)
	}

	end, err := file.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, 0, fmt.Errorf("seek log file: %w", err)
	}

	lines := make([]string, count)
	if count == limit {
		for i := 0; i < count; i++ {
			lines[i] = ring[(idx+i)%limit]
		}
	} else {
		copy(lines, ring[:count])
	}
	return lines, end, nil
}

func readFrom(path string, offset int64) ([]string, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return nil, 0, fmt.Errorf("seek log file: %w", err)
	}

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), scannerBufferSize)
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, fmt.Errorf("read log file: %w", err)
	}

	newOffset, err := file.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, 0, fmt.Errorf("determine log offset: %w", err)
	}
	return lines, newOffset, nil
}

// awaitLines polls for new content until something arrives, the wait
// expires, or the context is cancelled.
func awaitLines(ctx context.Context, path string, offset int64, wait time.Duration) (Result, error) {
	deadline := time.Now().Add(wait)

	ticker := time.NewTicker(followPollEvery)
	defer ticker.Stop()

	result := Result{Offset: offset}
	for {
		lines, newOffset, err := readFrom(path, offset)
		if err != nil {
			return result, err
		}
		if len(lines) > 0 {
			result.Lines = lines
			result.Offset = newOffset
			return result, nil
		}
		if time.Now().After(deadline) {
			result.Offset = newOffset
			return result, nil
		}

		select {
		case <-ctx.Done():
			result.Offset = newOffset
			return result, ctx.Err()
		case <-ticker.C:
		}
	}
}
