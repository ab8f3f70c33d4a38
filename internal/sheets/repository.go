// Package sheets maps habit records onto a remote spreadsheet backend.
//
// The backend is a drive-style file store plus a rectangular cell API:
// list files by name/parent/mimetype, create files and folders, read and
// write cell ranges, append rows, and delete row ranges via batch update.
// One habit is exactly one data row; the header row pins the column
// layout. Row indexes here are 0-based and exclude the header.
//
// All calls route through remote.Client, and a fixed inter-request delay
// is applied before each call to stay under the backend's burst quota
// even before any 429 is observed.
package sheets

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/KhanhRomVN/habitsync/internal/habit"
	"github.com/KhanhRomVN/habitsync/internal/remote"
)

const (
	mimeFolder      = "application/vnd.drive.folder"
	mimeSpreadsheet = "application/vnd.drive.spreadsheet"
)

// Config holds repository configuration.
type Config struct {
	// BaseURL is the backend root, e.g. "https://sheets.example.com/v1".
	BaseURL string

	// RootFolder and SubFolder name the folder hierarchy above the year
	// folders. Defaults: "HabitTracker" / "Habits".
	RootFolder string
	SubFolder  string

	// RequestDelay is the fixed pause before every sheet call
	// (default: 200ms). Backoff on top of this is the client's job.
	RequestDelay time.Duration

	// Logger for repository activity (default: stderr logger).
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults for the given backend URL.
func DefaultConfig(baseURL string) *Config {
	return &Config{
		BaseURL:      baseURL,
		RootFolder:   "HabitTracker",
		SubFolder:    "Habits",
		RequestDelay: 200 * time.Millisecond,
		Logger:       log.New(os.Stderr, "[sheets] ", log.LstdFlags),
	}
}

// Repository exposes row-level CRUD over the habit table.
type Repository struct {
	client *remote.Client
	config *Config

	mu            sync.Mutex
	spreadsheetID string

	// now and sleep are swapped out by tests.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a repository over the given client.
func New(client *remote.Client, config *Config) *Repository {
	if config == nil {
		config = DefaultConfig("")
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[sheets] ", log.LstdFlags)
	}
	if config.RootFolder == "" {
		config.RootFolder = "HabitTracker"
	}
	if config.SubFolder == "" {
		config.SubFolder = "Habits"
	}

	return &Repository{
		client: client,
		config: config,
		now:    time.Now,
		sleep:  sleepCtx,
	}
}

// SpreadsheetID returns the spreadsheet the repository is bound to, or ""
// before SetupDrive/SetSpreadsheetID.
func (r *Repository) SpreadsheetID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.spreadsheetID
}

// SetSpreadsheetID binds the repository to a known spreadsheet, e.g. one
// restored from cache, skipping discovery.
func (r *Repository) SetSpreadsheetID(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.spreadsheetID = id
}

// SetupDrive discovers or creates the folder hierarchy and the current
// month's spreadsheet, returning its id. Idempotent: existing segments
// are reused, only missing ones are created, and the header row is
// written on first creation only.
//
// If folder discovery itself fails outright, it falls back to creating an
// un-foldered spreadsheet with a timestamp-qualified name: habit data is
// never blocked on folder bureaucracy.
func (r *Repository) SetupDrive(ctx context.Context) (string, error) {
	now := r.now()
	sheetName := fmt.Sprintf("Habits-%04d-%02d", now.Year(), int(now.Month()))

	parent, err := r.ensureFolderChain(ctx, now)
	if err != nil {
		if remote.NeedsAuth(err) {
			return "", err
		}
		r.config.Logger.Printf("Folder discovery failed, falling back to un-foldered spreadsheet: %v", err)
		fallback := fmt.Sprintf("%s-%d", sheetName, now.Unix())
		id, createErr := r.createFile(ctx, fallback, mimeSpreadsheet, "")
		if createErr != nil {
			return "", fmt.Errorf("failed to create fallback spreadsheet: %w", createErr)
		}
		if err := r.writeHeader(ctx, id); err != nil {
			return "", err
		}
		r.SetSpreadsheetID(id)
		return id, nil
	}

	id, created, err := r.findOrCreateFile(ctx, sheetName, mimeSpreadsheet, parent)
	if err != nil {
		return "", fmt.Errorf("failed to set up spreadsheet %s: %w", sheetName, err)
	}
	if created {
		if err := r.writeHeader(ctx, id); err != nil {
			return "", err
		}
		r.config.Logger.Printf("Created spreadsheet %s (%s)", sheetName, id)
	}

	r.SetSpreadsheetID(id)
	return id, nil
}

// ensureFolderChain walks root folder -> sub folder -> year folder,
// creating whichever segments are missing, and returns the year folder id.
func (r *Repository) ensureFolderChain(ctx context.Context, now time.Time) (string, error) {
	root, _, err := r.findOrCreateFile(ctx, r.config.RootFolder, mimeFolder, "")
	if err != nil {
		return "", fmt.Errorf("failed to resolve root folder %s: %w", r.config.RootFolder, err)
	}

	sub, _, err := r.findOrCreateFile(ctx, r.config.SubFolder, mimeFolder, root)
	if err != nil {
		return "", fmt.Errorf("failed to resolve folder %s: %w", r.config.SubFolder, err)
	}

	yearName := fmt.Sprintf("%04d", now.Year())
	year, _, err := r.findOrCreateFile(ctx, yearName, mimeFolder, sub)
	if err != nil {
		return "", fmt.Errorf("failed to resolve year folder %s: %w", yearName, err)
	}
	return year, nil
}

// FetchRows reads all data rows, header excluded. An empty range or a
// malformed response degrades to no rows rather than an error; transport
// and auth failures still propagate so callers can leave their cache
// untouched.
func (r *Repository) FetchRows(ctx context.Context) ([][]string, error) {
	id, err := r.boundSpreadsheet()
	if err != nil {
		return nil, err
	}

	result, err := r.call(ctx, "GET", r.valuesURL(id, dataRange()), nil)
	if err != nil {
		return nil, err
	}

	var body struct {
		Values [][]string `json:"values"`
	}
	if result == nil {
		return [][]string{}, nil
	}
	if err := json.Unmarshal(result, &body); err != nil {
		r.config.Logger.Printf("Malformed range response, treating as empty: %v", err)
		return [][]string{}, nil
	}
	if body.Values == nil {
		return [][]string{}, nil
	}
	return body.Values, nil
}

// AppendRow appends one data row after the last row of the table.
func (r *Repository) AppendRow(ctx context.Context, row []string) error {
	id, err := r.boundSpreadsheet()
	if err != nil {
		return err
	}

	payload := map[string]any{"values": [][]string{row}}
	if _, err := r.call(ctx, "POST", r.valuesURL(id, dataRange())+":append", payload); err != nil {
		return fmt.Errorf("failed to append row: %w", err)
	}
	return nil
}

// UpdateRow overwrites the data row at the given 0-based index. The
// backend has no partial-column update, so the full row is written.
func (r *Repository) UpdateRow(ctx context.Context, rowIndex int, row []string) error {
	if rowIndex < 0 {
		return fmt.Errorf("row index must not be negative (got %d)", rowIndex)
	}
	id, err := r.boundSpreadsheet()
	if err != nil {
		return err
	}

	payload := map[string]any{"values": [][]string{row}}
	if _, err := r.call(ctx, "PUT", r.valuesURL(id, rowRange(rowIndex)), payload); err != nil {
		return fmt.Errorf("failed to update row %d: %w", rowIndex, err)
	}
	return nil
}

// DeleteRow removes the data row at the given 0-based index via a
// dimension delete. Every subsequent row shifts up by one: callers that
// cached row positions must re-resolve them after any delete.
func (r *Repository) DeleteRow(ctx context.Context, rowIndex int) error {
	if rowIndex < 0 {
		return fmt.Errorf("row index must not be negative (got %d)", rowIndex)
	}
	id, err := r.boundSpreadsheet()
	if err != nil {
		return err
	}

	// +1 converts to sheet coordinates, which include the header row.
	payload := map[string]any{
		"requests": []any{
			map[string]any{
				"deleteDimension": map[string]any{
					"range": map[string]any{
						"dimension":  "ROWS",
						"startIndex": rowIndex + 1,
						"endIndex":   rowIndex + 2,
					},
				},
			},
		},
	}
	endpoint := fmt.Sprintf("%s/spreadsheets/%s:batchUpdate", strings.TrimSuffix(r.config.BaseURL, "/"), url.PathEscape(id))
	if _, err := r.call(ctx, "POST", endpoint, payload); err != nil {
		return fmt.Errorf("failed to delete row %d: %w", rowIndex, err)
	}
	return nil
}

// FindRowIndex scans one column for the given value and returns the
// 0-based data row index, or -1 when absent. Row indexes shift on delete,
// so callers resolve immediately before each mutation and never cache the
// result.
func (r *Repository) FindRowIndex(ctx context.Context, column int, value string) (int, error) {
	rows, err := r.FetchRows(ctx)
	if err != nil {
		return -1, err
	}
	for i, row := range rows {
		if column < len(row) && row[column] == value {
			return i, nil
		}
	}
	return -1, nil
}

// writeHeader writes the fixed column header into row 1.
func (r *Repository) writeHeader(ctx context.Context, spreadsheetID string) error {
	payload := map[string]any{"values": [][]string{habit.Header()}}
	if _, err := r.call(ctx, "PUT", r.valuesURL(spreadsheetID, headerRange()), payload); err != nil {
		return fmt.Errorf("failed to write header row: %w", err)
	}
	return nil
}

// findOrCreateFile looks a file up by name, mimetype and parent, creating
// it when absent. The second return reports whether it was created.
func (r *Repository) findOrCreateFile(ctx context.Context, name, mimeType, parent string) (string, bool, error) {
	id, err := r.findFile(ctx, name, mimeType, parent)
	if err != nil {
		return "", false, err
	}
	if id != "" {
		return id, false, nil
	}
	id, err = r.createFile(ctx, name, mimeType, parent)
	if err != nil {
		return "", false, err
	}
	return id, true, nil
}

func (r *Repository) findFile(ctx context.Context, name, mimeType, parent string) (string, error) {
	query := url.Values{}
	query.Set("name", name)
	query.Set("mimeType", mimeType)
	if parent != "" {
		query.Set("parent", parent)
	}
	endpoint := fmt.Sprintf("%s/files?%s", strings.TrimSuffix(r.config.BaseURL, "/"), query.Encode())

	result, err := r.call(ctx, "GET", endpoint, nil)
	if err != nil {
		return "", err
	}

	var body struct {
		Files []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"files"`
	}
	if result == nil {
		return "", nil
	}
	if err := json.Unmarshal(result, &body); err != nil {
		return "", fmt.Errorf("malformed file list response: %w", err)
	}
	if len(body.Files) == 0 {
		return "", nil
	}
	return body.Files[0].ID, nil
}

func (r *Repository) createFile(ctx context.Context, name, mimeType, parent string) (string, error) {
	payload := map[string]any{"name": name, "mimeType": mimeType}
	if parent != "" {
		payload["parents"] = []string{parent}
	}
	endpoint := fmt.Sprintf("%s/files", strings.TrimSuffix(r.config.BaseURL, "/"))

	result, err := r.call(ctx, "POST", endpoint, payload)
	if err != nil {
		return "", err
	}

	var body struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(result, &body); err != nil || body.ID == "" {
		return "", fmt.Errorf("create response missing file id")
	}
	return body.ID, nil
}

// call paces then issues one request through the retrying client.
func (r *Repository) call(ctx context.Context, method, url string, body any) (json.RawMessage, error) {
	if r.config.RequestDelay > 0 {
		if err := r.sleep(ctx, r.config.RequestDelay); err != nil {
			return nil, err
		}
	}
	return r.client.Request(ctx, method, url, body)
}

func (r *Repository) boundSpreadsheet() (string, error) {
	id := r.SpreadsheetID()
	if id == "" {
		return "", fmt.Errorf("repository not bound to a spreadsheet (run setup first)")
	}
	return id, nil
}

func (r *Repository) valuesURL(spreadsheetID, rangeRef string) string {
	return fmt.Sprintf("%s/spreadsheets/%s/values/%s",
		strings.TrimSuffix(r.config.BaseURL, "/"), url.PathEscape(spreadsheetID), url.PathEscape(rangeRef))
}

// lastColumn is the A1-style letter of the final habit column.
var lastColumn = columnLetter(habit.ColumnCount)

// columnLetter converts a 1-based column number to its A1 letters.
func columnLetter(n int) string {
	letters := ""
	for n > 0 {
		n--
		letters = string(rune('A'+n%26)) + letters
		n /= 26
	}
	return letters
}

func headerRange() string {
	return fmt.Sprintf("A1:%s1", lastColumn)
}

func dataRange() string {
	return fmt.Sprintf("A2:%s", lastColumn)
}

// rowRange addresses one data row; +2 skips the header and converts to
// 1-based sheet coordinates.
func rowRange(rowIndex int) string {
	return fmt.Sprintf("A%d:%s%d", rowIndex+2, lastColumn, rowIndex+2)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
