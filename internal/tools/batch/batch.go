package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Result is the outcome for one id.
type Result struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Result string `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

func Succeeded(id, message string) Result {
	return Result{ID: id, Status: StatusSuccess, Result: message}
}

func Failed(id string, err error) Result {
	return Result{ID: id, Status: StatusError, Error: err.Error()}
}

// Summary is the wire shape of a batch outcome, shared by the HTTP archive
// endpoint and the MCP write tools.
type Summary struct {
	Total      int      `json:"total"`
	Successful int      `json:"successful"`
	Failed     int      `json:"failed"`
	Results    []Result `json:"results"`
}

func Summarize(results []Result) Summary {
	s := Summary{Total: len(results), Results: results}
	for _, r := range results {
		if r.Status == StatusSuccess {
			s.Successful++
		} else {
			s.Failed++
		}
	}
	return s
}

// Format renders the summary of results as indented JSON for tool output.
func Format(results []Result) string {
	out, _ := json.MarshalIndent(Summarize(results), "", "  ")
	return string(out)
}

// ParseIDs accepts a tool argument holding either one id or a list of ids.
// name is used in error messages.
func ParseIDs(arg any, name string) ([]string, error) {
	var ids []string
	switch v := arg.(type) {
	case nil:
		return nil, fmt.Errorf("%s is required", name)
	case string:
		if strings.TrimSpace(v) == "" {
			return nil, fmt.Errorf("%s cannot be empty", name)
		}
		return []string{v}, nil
	case []string:
		ids = v
	case []any:
		ids = make([]string, len(v))
		for i, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%s[%d] must be a string", name, i)
			}
			ids[i] = s
		}
	default:
		return nil, fmt.Errorf("%s must be a string or array of strings", name)
	}

	if len(ids) == 0 {
		return nil, fmt.Errorf("%s cannot be empty", name)
	}
	for i, id := range ids {
		if strings.TrimSpace(id) == "" {
			return nil, fmt.Errorf("%s[%d] cannot be empty", name, i)
		}
	}
	return ids, nil
}

// Run calls fn for every id with at most limit calls in flight and returns
// the results in the order of ids. Ids not started before ctx is done fail
// with the context error.
func Run(ctx context.Context, ids []string, limit int, fn func(ctx context.Context, id string) (string, error)) []Result {
	results := make([]Result, len(ids))

	var g errgroup.Group
	g.SetLimit(max(limit, 1))
	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			results[i] = Failed(id, err)
			continue
		}
		g.Go(func() error {
			msg, err := fn(ctx, id)
			if err != nil {
				results[i] = Failed(id, err)
			} else {
				results[i] = Succeeded(id, msg)
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}
