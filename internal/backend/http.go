package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type HTTPConfig struct {
	BaseURL    string `json:"base_url"` // https://api.example.com/v1
	APIKey     string `json:"api_key"`
	Username   string `json:"username,omitempty"` // opcjonalnie Basic Auth zamiast Bearer
	Password   string `json:"password,omitempty"`
	BulkUpdate bool   `json:"bulk_update"` // backend wystawia PATCH /entities/{e}/bulk
	TimeoutSec int    `json:"timeout_sec"`
	PerPage    int    `json:"per_page"`
}

// HTTPClient - klient REST backendu.
//
//	GET    /entities/{entity}?page=&per_page=&q=   lista (paginowana)
//	POST   /entities/{entity}                      create
//	POST   /entities/{entity}/bulk                 bulk create
//	PATCH  /entities/{entity}/{id}                 update
//	PATCH  /entities/{entity}/bulk                 bulk update (opcjonalnie)
//	POST   /files                                  upload (multipart "file")
//	POST   /integrations/extract                   ekstrakcja danych z pliku
type HTTPClient struct {
	log  zerolog.Logger
	cfg  HTTPConfig
	base *url.URL
	http *http.Client
}

// httpBulkClient - wariant z BulkUpdate, wybierany w fabryce.
type httpBulkClient struct {
	*HTTPClient
}

func NewHTTPClient(log zerolog.Logger, cfg HTTPConfig, hc *http.Client) (Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("http backend: brak base_url")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("http backend: base_url: %w", err)
	}
	if cfg.PerPage <= 0 {
		cfg.PerPage = 100
	}
	if hc == nil {
		timeout := time.Duration(cfg.TimeoutSec) * time.Second
		if timeout <= 0 {
			timeout = 20 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	c := &HTTPClient{log: log, cfg: cfg, base: base, http: hc}
	if cfg.BulkUpdate {
		return &httpBulkClient{HTTPClient: c}, nil
	}
	return c, nil
}

func (c *HTTPClient) Name() string { return "http" }

func (c *HTTPClient) endpoint(parts ...string) *url.URL {
	u := *c.base
	u.Path = path.Join(append([]string{c.base.Path}, parts...)...)
	return &u
}

func (c *HTTPClient) newRequest(ctx context.Context, method string, u *url.URL, body io.Reader, contentType string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "barsync/1.0")
	if c.cfg.Username != "" {
		req.SetBasicAuth(c.cfg.Username, c.cfg.Password)
	} else if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	return req, nil
}

// doJSON wysyła body (JSON) i dekoduje odpowiedź do out (jeśli out != nil).
func (c *HTTPClient) doJSON(ctx context.Context, method string, u *url.URL, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, u.Path, err)
		}
		body = bytes.NewReader(b)
	}
	req, err := c.newRequest(ctx, method, u, body, "application/json")
	if err != nil {
		return err
	}
	return c.send(req, out)
}

func (c *HTTPClient) send(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{
			Code:   resp.StatusCode,
			Method: req.Method,
			Path:   req.URL.Path,
			Body:   strings.TrimSpace(string(b)),
		}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", req.Method, req.URL.Path, err)
	}
	return nil
}

func (c *HTTPClient) List(ctx context.Context, entity string, filter Query) ([]Record, error) {
	u := c.endpoint("entities", entity)
	page := 1
	var out []Record

	for {
		q := url.Values{}
		q.Set("per_page", strconv.Itoa(c.cfg.PerPage))
		q.Set("page", strconv.Itoa(page))
		if len(filter) > 0 {
			fb, err := json.Marshal(filter)
			if err != nil {
				return nil, fmt.Errorf("encode filter: %w", err)
			}
			q.Set("q", string(fb))
		}
		u.RawQuery = q.Encode()

		var items []Record
		if err := c.doJSON(ctx, http.MethodGet, u, nil, &items); err != nil {
			return nil, fmt.Errorf("list %s page %d: %w", entity, page, err)
		}
		out = append(out, items...)
		if len(items) < c.cfg.PerPage {
			break
		}
		page++
	}

	c.log.Debug().Str("entity", entity).Int("records", len(out)).Int("pages", page).Msg("list done")
	return out, nil
}

func (c *HTTPClient) Create(ctx context.Context, entity string, data map[string]any) (Record, error) {
	var rec Record
	err := c.doJSON(ctx, http.MethodPost, c.endpoint("entities", entity), data, &rec)
	return rec, err
}

func (c *HTTPClient) BulkCreate(ctx context.Context, entity string, items []map[string]any) ([]Record, error) {
	var recs []Record
	err := c.doJSON(ctx, http.MethodPost, c.endpoint("entities", entity, "bulk"), items, &recs)
	return recs, err
}

func (c *HTTPClient) Update(ctx context.Context, entity, id string, changes map[string]any) (Record, error) {
	var rec Record
	err := c.doJSON(ctx, http.MethodPatch, c.endpoint("entities", entity, id), changes, &rec)
	return rec, err
}

func (c *httpBulkClient) BulkUpdate(ctx context.Context, entity string, ops []UpdateOp) error {
	return c.doJSON(ctx, http.MethodPatch, c.endpoint("entities", entity, "bulk"), ops, nil)
}

func (c *HTTPClient) Upload(ctx context.Context, name string, data []byte) (FileRef, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", name)
	if err != nil {
		return FileRef{}, err
	}
	if _, err := fw.Write(data); err != nil {
		return FileRef{}, err
	}
	if err := mw.Close(); err != nil {
		return FileRef{}, err
	}

	req, err := c.newRequest(ctx, http.MethodPost, c.endpoint("files"), &buf, mw.FormDataContentType())
	if err != nil {
		return FileRef{}, err
	}
	var ref FileRef
	if err := c.send(req, &ref); err != nil {
		return FileRef{}, fmt.Errorf("upload %s: %w", name, err)
	}
	if ref.Name == "" {
		ref.Name = name
	}
	return ref, nil
}

func (c *HTTPClient) Extract(ctx context.Context, ref FileRef, schema map[string]any) (Extraction, error) {
	in := map[string]any{
		"file_url":    ref.URL,
		"json_schema": schema,
	}
	var ex Extraction
	if err := c.doJSON(ctx, http.MethodPost, c.endpoint("integrations", "extract"), in, &ex); err != nil {
		return Extraction{}, fmt.Errorf("extract %s: %w", ref.URL, err)
	}
	return ex, nil
}

func httpFactory(log zerolog.Logger, raw json.RawMessage, deps Deps) (Client, error) {
	var cfg HTTPConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}
	if cfg.APIKey == "" {
		cfg.APIKey = deps.APIKey
	}
	return NewHTTPClient(log, cfg, deps.HTTP)
}

func init() {
	Register("http", httpFactory)
}
