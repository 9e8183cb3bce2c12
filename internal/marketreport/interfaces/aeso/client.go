package aeso

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"aeso-report/internal/marketreport/application"
	marketreport "aeso-report/internal/marketreport/domain"
)

// queryDateLayout is the MMDDYYYY form the servlet expects.
const queryDateLayout = "01022006"

// maxBodyBytes caps a single report response.
const maxBodyBytes = 64 << 20

var (
	// ErrUnsupportedContentType is returned for content types other than csv and html.
	ErrUnsupportedContentType = errors.New("aeso: unsupported content type")
	// ErrBodyTooLarge is returned instead of parsing a truncated report.
	ErrBodyTooLarge = errors.New("aeso: report body too large")
)

// Client fetches the public summary report.
type Client struct {
	baseURL     string
	path        string
	contentType string
	client      *http.Client
	maxBody     int64
}

// NewClient constructs a report client.
func NewClient(baseURL, path, contentType string, timeout time.Duration) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("aeso: empty base url")
	}
	if path == "" {
		return nil, errors.New("aeso: empty report path")
	}
	switch contentType {
	case application.ContentTypeCSV, application.ContentTypeHTML:
	case "":
		contentType = application.ContentTypeCSV
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedContentType, contentType)
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		path:        "/" + strings.TrimLeft(path, "/"),
		contentType: contentType,
		client:      &http.Client{Timeout: timeout},
		maxBody:     maxBodyBytes,
	}, nil
}

// ReportURL returns the request URL for an inclusive date range.
func (c *Client) ReportURL(begin, end time.Time) string {
	query := url.Values{}
	query.Set("beginDate", begin.Format(queryDateLayout))
	query.Set("endDate", end.Format(queryDateLayout))
	query.Set("contentType", c.contentType)
	return c.baseURL + c.path + "?" + query.Encode()
}

// FetchReport downloads and tokenises the report covering begin..end.
func (c *Client) FetchReport(ctx context.Context, begin, end time.Time) (*application.RawReport, error) {
	if begin.IsZero() || end.IsZero() || end.Before(begin) {
		return nil, marketreport.ErrInvalidDate
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.ReportURL(begin, end), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("aeso: http %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > c.maxBody {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrBodyTooLarge, c.maxBody)
	}

	var lines []marketreport.ReportLine
	switch c.contentType {
	case application.ContentTypeHTML:
		lines, err = ParseHTML(bytes.NewReader(body))
	default:
		lines, err = ParseCSV(bytes.NewReader(body))
	}
	if err != nil {
		return nil, fmt.Errorf("aeso: parse %s: %w", c.contentType, err)
	}
	return &application.RawReport{
		Range:       application.DateRange{Begin: marketreport.DayStart(begin), End: marketreport.DayStart(end)},
		ContentType: c.contentType,
		Body:        body,
		Lines:       lines,
	}, nil
}
