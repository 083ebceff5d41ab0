package pipeline

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"fluve/internal/etl"
	"fluve/internal/frame"
	"fluve/internal/indicator"
	"fluve/internal/join"
	"fluve/internal/recode"
	"fluve/internal/redcap"
	"fluve/internal/validate"
)

// ErrMissingLabColumn is returned when the lab results lack a layout column.
var ErrMissingLabColumn = errors.New("lab results missing column")

// UnreadableLabLabel names the check listing lab rows with cells that did
// not fit the layout, as read from the source.
const UnreadableLabLabel = "Unreadable lab values"

// Cache stores fetched survey tables between runs. It is read if present
// and written after a fetch; entries never expire on their own.
type Cache interface {
	Get(name string) (*frame.Table, time.Time, bool, error)
	Put(name string, t *frame.Table) error
}

// Deps are the collaborators a build needs.
type Deps struct {
	Survey redcap.Client
	Engine *etl.Engine
	Cache  Cache // nil disables caching
	Log    *zap.Logger
}

// Project is the result of one run. It is built once and not modified
// afterwards.
type Project struct {
	RunID    string
	BuiltAt  time.Time
	Staffing *frame.Table
	Records  *frame.Table
	// Metadata holds each survey's data dictionary by project name.
	Metadata map[string]redcap.Metadata
	Failures validate.Failures
	LabRows  int
}

// Build runs the pipeline once. Survey export failures, a missing lab file
// or layout column, and duplicate lab keys abort the run. Recode problems
// and unreadable lab cells are absorbed; validation failures are recorded
// on the Project.
func Build(ctx context.Context, deps Deps, study Study) (*Project, error) {
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}
	p := &Project{
		RunID:    uuid.NewString(),
		Metadata: map[string]redcap.Metadata{},
	}
	log = log.With(zap.String("run", p.RunID))
	log.Info("building project")

	staffing, err := fetchSurvey(ctx, deps, log, study.Staffing, p.Metadata)
	if err != nil {
		return nil, err
	}
	records, err := fetchSurvey(ctx, deps, log, study.Enrollment, p.Metadata)
	if err != nil {
		return nil, err
	}

	if study.windowed() {
		before := records.Len()
		records = records.Filter(func(r frame.Row) bool {
			ts, ok := r.Get(study.DateColumn).Time()
			return ok && study.inWindow(ts)
		})
		log.Info("applied study window", zap.Int("before", before), zap.Int("after", records.Len()))
	}

	lab, unreadable, err := extractLab(ctx, deps.Engine, log, study.Lab)
	if err != nil {
		return nil, err
	}
	p.LabRows = lab.Len()

	records, err = join.Merge(records, lab, study.IDColumn)
	if err != nil {
		return nil, fmt.Errorf("join lab results: %w", err)
	}
	log.Debug("joined lab results", zap.Int("lab_rows", lab.Len()), zap.Int("records", records.Len()))

	if err := indicator.Apply(records, study.Rules); err != nil {
		return nil, fmt.Errorf("indicators: %w", err)
	}

	cases := []validate.Case{{Label: UnreadableLabLabel, Rows: unreadable}}
	if study.Checks != nil {
		cases = append(cases, study.Checks(records, staffing)...)
	}
	p.Failures = validate.Run(log, cases)

	p.Staffing = staffing
	p.Records = records
	p.BuiltAt = time.Now().UTC()
	log.Info("project built",
		zap.Int("staffing", staffing.Len()),
		zap.Int("records", records.Len()),
		zap.Int("failed_checks", len(p.Failures)),
	)
	return p, nil
}

// fetchSurvey returns the recoded table of one survey, from the cache when
// it holds both the records and the dictionary.
func fetchSurvey(ctx context.Context, deps Deps, log *zap.Logger, spec SurveySpec, dicts map[string]redcap.Metadata) (*frame.Table, error) {
	name := spec.Project.Name
	log = log.With(zap.String("project", name))

	t, md, hit := readCache(deps.Cache, log, name)
	if !hit {
		var err error
		md, err = deps.Survey.ExportMetadata(ctx, spec.Project)
		if err != nil {
			return nil, err
		}
		recs, err := deps.Survey.ExportRecords(ctx, spec.Project)
		if err != nil {
			return nil, err
		}
		t = redcap.ToTable(recs, spec.Project.Fields)
		redcap.Assign(log, t, md.Types())
		t.Rename(spec.Renames)
		writeCache(deps.Cache, log, name, t, md)
	}
	dicts[name] = md

	var recodes []recode.Recode
	if spec.DictionaryRecodes != nil {
		recodes = append(recodes, spec.DictionaryRecodes(md)...)
	}
	recodes = append(recodes, spec.Recodes...)
	return recode.Apply(log, t, recodes), nil
}

func metadataKey(name string) string { return name + "_metadata" }

func readCache(c Cache, log *zap.Logger, name string) (*frame.Table, redcap.Metadata, bool) {
	if c == nil {
		return nil, nil, false
	}
	t, at, ok, err := c.Get(name)
	if err != nil {
		log.Warn("cache read failed", zap.Error(err))
		return nil, nil, false
	}
	if !ok {
		return nil, nil, false
	}
	mt, _, ok, err := c.Get(metadataKey(name))
	if err != nil || !ok {
		return nil, nil, false
	}
	log.Info("using cached table", zap.Time("fetched_at", at), zap.Int("rows", t.Len()))
	return t, redcap.MetadataFromTable(mt), true
}

func writeCache(c Cache, log *zap.Logger, name string, t *frame.Table, md redcap.Metadata) {
	if c == nil {
		return
	}
	if err := c.Put(name, t); err != nil {
		log.Warn("cache write failed", zap.Error(err))
		return
	}
	if err := c.Put(metadataKey(name), md.Table()); err != nil {
		log.Warn("cache write failed", zap.Error(err))
	}
}

// extractLab reads the lab results and casts them to the fixed layout.
// Cells that do not fit their column become the column's missing marker;
// the raw rows holding them are returned for reporting.
func extractLab(ctx context.Context, engine *etl.Engine, log *zap.Logger, spec LabSpec) (*frame.Table, *frame.Table, error) {
	t, _, err := engine.Extract(ctx, spec.Source, spec.Config, spec.Transforms)
	if err != nil {
		return nil, nil, fmt.Errorf("lab results: %w", err)
	}
	raw := t.Clone()
	unreadable := map[int]bool{}
	for _, lc := range spec.Columns {
		c, ok := t.Column(lc.Name)
		if !ok {
			return nil, nil, fmt.Errorf("%w %q", ErrMissingLabColumn, lc.Name)
		}
		var (
			cast *frame.Column
			bad  []int
		)
		if lc.Kind == frame.KindCategory && len(lc.Categories) > 0 {
			cast, bad = c.CastCategoriesOrNull(lc.Categories, false)
		} else {
			cast, bad = c.CastOrNull(lc.Kind)
		}
		if len(bad) > 0 {
			log.Warn("unreadable lab values", zap.String("column", lc.Name), zap.Int("cells", len(bad)))
		}
		for _, i := range bad {
			unreadable[i] = true
		}
		if err := t.SetColumn(cast); err != nil {
			return nil, nil, err
		}
	}
	rows := make([]int, 0, len(unreadable))
	for i := range unreadable {
		rows = append(rows, i)
	}
	slices.Sort(rows)
	return t, raw.Take(rows), nil
}
