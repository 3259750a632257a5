package costmodel

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Read parses the textual cost-model format: the task count on the first line, the
// processor count on the second, then one whitespace-separated row per task.
// Blank lines after the header are ignored.
func Read(r io.Reader) (*CostModel, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	line := 0
	nextLine := func() (string, bool) {
		for scanner.Scan() {
			line++
			text := strings.TrimSpace(scanner.Text())
			if text != "" {
				return text, true
			}
		}
		return "", false
	}

	header := func(what string) (int, error) {
		text, ok := nextLine()
		if !ok {
			return 0, fmt.Errorf("%w: missing %s", ErrMalformedInput, what)
		}
		v, err := strconv.Atoi(text)
		if err != nil {
			return 0, fmt.Errorf("%w: line %d: %s: %v", ErrMalformedInput, line, what, err)
		}
		if v <= 0 {
			return 0, fmt.Errorf("%w: line %d: %s must be > 0 (got %d)", ErrMalformedInput, line, what, v)
		}
		return v, nil
	}

	taskCount, err := header("task count")
	if err != nil {
		return nil, err
	}
	processorCount, err := header("processor count")
	if err != nil {
		return nil, err
	}

	flat := make([]float64, 0, taskCount*processorCount)
	for t := 0; t < taskCount; t++ {
		text, ok := nextLine()
		if !ok {
			if err := scanner.Err(); err != nil {
				return nil, err
			}
			return nil, fmt.Errorf("%w: expected %d task rows, got %d", ErrMalformedInput, taskCount, t)
		}
		fields := strings.Fields(text)
		if len(fields) != processorCount {
			return nil, fmt.Errorf("%w: line %d: expected %d values, got %d", ErrMalformedInput, line, processorCount, len(fields))
		}
		for _, field := range fields {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: line %d: %v", ErrMalformedInput, line, err)
			}
			flat = append(flat, v)
		}
	}
	if text, ok := nextLine(); ok {
		return nil, fmt.Errorf("%w: line %d: unexpected trailing data %q", ErrMalformedInput, line, text)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return FromFlat(taskCount, processorCount, flat)
}

// ReadFile reads a cost model from path and names it after the file.
func ReadFile(path string) (*CostModel, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cm, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return cm.WithName(filepath.Base(path)), nil
}

// Write serializes cm in the format accepted by Read. Values use the shortest
// representation that parses back to the same float64.
func Write(w io.Writer, cm *CostModel) error {
	bw := bufio.NewWriter(w)
	if _, err := fmt.Fprintf(bw, "%d\n%d", cm.TaskCount(), cm.ProcessorCount()); err != nil {
		return err
	}
	for t := 0; t < cm.TaskCount(); t++ {
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
		for p := 0; p < cm.ProcessorCount(); p++ {
			if p > 0 {
				if err := bw.WriteByte(' '); err != nil {
					return err
				}
			}
			if _, err := bw.WriteString(strconv.FormatFloat(cm.Time(t, p), 'g', -1, 64)); err != nil {
				return err
			}
		}
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}
	return bw.Flush()
}

// WriteFile writes cm to path, creating parent directories as needed.
func WriteFile(path string, cm *CostModel) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Write(f, cm); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
