package bench

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// StampFormat is the run_timestamp layout in results files.
const StampFormat = "2006-01-02 15:04:05"

const resultsSuffix = "-results.csv"

// Columns is the results file header, in write order.
var Columns = []string{
	"benchmark_name",
	"query_name",
	"query_type",
	"execution_time",
	"run_timestamp",
	"git_revision",
	"git_revision_timestamp",
	"num_cores",
}

// Row is one timed statement execution.
type Row struct {
	Benchmark    string  `json:"benchmark_name"`
	Query        string  `json:"query_name"`
	Type         string  `json:"query_type"`
	Seconds      float64 `json:"execution_time"`
	RunAt        string  `json:"run_timestamp"`
	Revision     string  `json:"git_revision"`
	RevisionTime string  `json:"git_revision_timestamp"`
	Cores        int     `json:"num_cores"`
}

// ResultStore keeps one append-only CSV per suite under its directory.
type ResultStore struct {
	dir string
}

func NewResultStore(dir string) *ResultStore {
	return &ResultStore{dir: dir}
}

func (s *ResultStore) file(suite string) string {
	return filepath.Join(s.dir, suite+resultsSuffix)
}

// Append adds rows to the suite's results file, writing the header only
// when the file is new.
func (s *ResultStore) Append(suite string, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create results dir: %w", err)
	}

	path := s.file(suite)
	_, statErr := os.Stat(path)
	fresh := os.IsNotExist(statErr)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open results file: %w", err)
	}
	w := csv.NewWriter(f)
	if fresh {
		if err := w.Write(Columns); err != nil {
			f.Close()
			return err
		}
	}
	for _, row := range rows {
		if err := w.Write(record(row)); err != nil {
			f.Close()
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func record(r Row) []string {
	return []string{
		r.Benchmark,
		r.Query,
		r.Type,
		strconv.FormatFloat(r.Seconds, 'g', -1, 64),
		r.RunAt,
		r.Revision,
		r.RevisionTime,
		strconv.Itoa(r.Cores),
	}
}

// Load reads every row of the suite's results file. Columns are looked
// up by header name, so files written by older layouts still load.
func (s *ResultStore) Load(suite string) ([]Row, error) {
	f, err := os.Open(s.file(suite))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open results file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read results file: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	idx := make(map[string]int, len(records[0]))
	for i, col := range records[0] {
		idx[col] = i
	}
	field := func(rec []string, col string) string {
		i, ok := idx[col]
		if !ok || i >= len(rec) {
			return ""
		}
		return rec[i]
	}

	rows := make([]Row, 0, len(records)-1)
	for _, rec := range records[1:] {
		seconds, _ := strconv.ParseFloat(field(rec, "execution_time"), 64)
		cores, _ := strconv.Atoi(field(rec, "num_cores"))
		rows = append(rows, Row{
			Benchmark:    field(rec, "benchmark_name"),
			Query:        field(rec, "query_name"),
			Type:         field(rec, "query_type"),
			Seconds:      seconds,
			RunAt:        field(rec, "run_timestamp"),
			Revision:     field(rec, "git_revision"),
			RevisionTime: field(rec, "git_revision_timestamp"),
			Cores:        cores,
		})
	}
	return rows, nil
}

// RevisionRan reports whether the suite already has rows for the
// revision, which is how repeat benchmark jobs become no-ops.
func (s *ResultStore) RevisionRan(suite, revision string) (bool, error) {
	if revision == "" {
		return false, nil
	}
	rows, err := s.Load(suite)
	if err != nil {
		return false, err
	}
	for _, row := range rows {
		if row.Revision == revision {
			return true, nil
		}
	}
	return false, nil
}

// Suites lists the suites that have results files, sorted by name.
func (s *ResultStore) Suites() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read results dir: %w", err)
	}
	var suites []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, resultsSuffix) {
			continue
		}
		suites = append(suites, strings.TrimSuffix(name, resultsSuffix))
	}
	sort.Strings(suites)
	return suites, nil
}

// QuerySummary aggregates the query-type rows for one query.
type QuerySummary struct {
	Query       string  `json:"query"`
	Runs        int     `json:"runs"`
	MinSeconds  float64 `json:"min_seconds"`
	MeanSeconds float64 `json:"mean_seconds"`
}

// Summarize folds rows into per-query aggregates, ignoring
// table_creation rows. A non-empty revision narrows to that revision.
func Summarize(rows []Row, revision string) []QuerySummary {
	byQuery := make(map[string]*QuerySummary)
	totals := make(map[string]float64)
	for _, row := range rows {
		if row.Type != "query" {
			continue
		}
		if revision != "" && row.Revision != revision {
			continue
		}
		s := byQuery[row.Query]
		if s == nil {
			s = &QuerySummary{Query: row.Query, MinSeconds: row.Seconds}
			byQuery[row.Query] = s
		}
		s.Runs++
		totals[row.Query] += row.Seconds
		if row.Seconds < s.MinSeconds {
			s.MinSeconds = row.Seconds
		}
	}

	summaries := make([]QuerySummary, 0, len(byQuery))
	for query, s := range byQuery {
		s.MeanSeconds = totals[query] / float64(s.Runs)
		summaries = append(summaries, *s)
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].Query < summaries[j].Query
	})
	return summaries
}
