// crashkeepctl is a thin admin CLI for a running crashkeep instance. It
// drives the admin-gated management API over HTTP — it has no direct
// database access of its own.
//
// Usage:
//
//	crashkeepctl -target http://localhost:3000 -admin-key secret -op project-create -name myapp
//	crashkeepctl -target http://localhost:3000 -admin-key secret -op project-list
//	crashkeepctl -target http://localhost:3000 -admin-key secret -op project-delete -id 3
//	crashkeepctl -target http://localhost:3000 -admin-key secret -op archives-export -file backup.json
//	crashkeepctl -target http://localhost:3000 -admin-key secret -op archives-import -file backup.json
//	crashkeepctl -target http://localhost:3000 -admin-key secret -op ruminate
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"
)

func main() {
	target := flag.String("target", "", "crashkeep base URL (e.g., http://localhost:3000)")
	adminKey := flag.String("admin-key", "", "crashkeep admin key")
	op := flag.String("op", "", "operation: project-create, project-list, project-delete, archives-export, archives-import, ruminate")
	name := flag.String("name", "", "project name, for project-create")
	id := flag.Int("id", 0, "project id, for project-delete")
	file := flag.String("file", "", "archive bundle path, for archives-export/archives-import")
	flag.Parse()

	if *target == "" || *adminKey == "" || *op == "" {
		log.Fatal("all of -target, -admin-key, -op are required")
	}

	c := &Client{
		base:     strings.TrimRight(*target, "/"),
		adminKey: *adminKey,
		client:   &http.Client{Timeout: 30 * time.Second},
	}

	var err error
	switch *op {
	case "project-create":
		err = c.createProject(*name)
	case "project-list":
		err = c.listProjects()
	case "project-delete":
		err = c.deleteProject(*id)
	case "archives-export":
		err = c.exportArchives(*file)
	case "archives-import":
		err = c.importArchives(*file)
	case "ruminate":
		err = c.ruminate()
	default:
		log.Fatalf("unknown -op %q", *op)
	}

	if err != nil {
		log.Fatalf("%s failed: %v", *op, err)
	}
}

// Client drives crashkeep's admin-gated management API.
type Client struct {
	base     string
	adminKey string
	client   *http.Client
}

func (c *Client) request(method, path string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequest(method, c.base+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.adminKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, string(respBody))
	}
	return respBody, nil
}

func (c *Client) createProject(name string) error {
	if name == "" {
		return fmt.Errorf("-name is required for project-create")
	}
	body, _ := json.Marshal(map[string]string{"name": name})
	out, err := c.request(http.MethodPost, "/admin/projects", body)
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func (c *Client) listProjects() error {
	out, err := c.request(http.MethodGet, "/admin/projects", nil)
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func (c *Client) deleteProject(id int) error {
	if id == 0 {
		return fmt.Errorf("-id is required for project-delete")
	}
	out, err := c.request(http.MethodDelete, fmt.Sprintf("/admin/projects/%d", id), nil)
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func (c *Client) exportArchives(file string) error {
	if file == "" {
		return fmt.Errorf("-file is required for archives-export")
	}
	out, err := c.request(http.MethodPost, "/admin/archives/export", nil)
	if err != nil {
		return err
	}
	if err := os.WriteFile(file, out, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", file, err)
	}
	log.Printf("wrote archive bundle to %s", file)
	return nil
}

func (c *Client) importArchives(file string) error {
	if file == "" {
		return fmt.Errorf("-file is required for archives-import")
	}
	body, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("read %s: %w", file, err)
	}
	out, err := c.request(http.MethodPost, "/admin/archives/import", body)
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func (c *Client) ruminate() error {
	out, err := c.request(http.MethodPost, "/admin/ruminate", nil)
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
