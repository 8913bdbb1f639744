package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

type client struct {
	base string
	http http.Client
	log  *zap.Logger
	out  io.Writer
}

// do sends the request and pretty-prints the JSON response. Statuses of 400
// and above become errors after the body is printed.
func (c *client) do(ctx context.Context, method, path string, form url.Values) error {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.base, "/")+path, body)
	if err != nil {
		return err
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	c.log.Debug("request", zap.String("method", method), zap.String("url", req.URL.String()))
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("http error: %w", err)
	}
	defer resp.Body.Close()
	c.log.Debug("response", zap.Int("status", resp.StatusCode))

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		fmt.Fprintln(c.out, string(raw))
	} else {
		pretty, _ := json.MarshalIndent(out, "", "  ")
		fmt.Fprintln(c.out, string(pretty))
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%s %s: %s", method, path, resp.Status)
	}
	return nil
}
