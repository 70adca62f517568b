package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/respstack/respstats/internal/aggregate"
	"github.com/respstack/respstats/internal/calc"
	"github.com/respstack/respstats/internal/measures"
	"github.com/respstack/respstats/internal/models"
	"github.com/respstack/respstats/internal/utils"
)

// ReportDimension names one aggregation dimension for a report, with an
// optional constructor parameter and category whitelist.
type ReportDimension struct {
	Name   string   `yaml:"name"`
	Param  string   `yaml:"param"`
	Filter []string `yaml:"filter"`
}

// ReportSpec describes one statistic: how to group incidents, which measure
// to take per group, and how to reduce each group's values.
type ReportSpec struct {
	Name        string            `yaml:"name"`
	Dimensions  []ReportDimension `yaml:"dimensions"`
	Measure     string            `yaml:"measure"`
	Calculation string            `yaml:"calculation"`
	Param       *float64          `yaml:"param"`
	WindowStart string            `yaml:"windowStart"`
	WindowEnd   string            `yaml:"windowEnd"`
}

// ReportPackFile is the YAML root structure.
type ReportPackFile struct {
	Reports []ReportSpec `yaml:"reports"`
}

// ReportRow is one output row: the category keys along each grouped
// dimension, the measured result, and the group's incident count.
type ReportRow struct {
	Keys   []aggregate.Key
	Result measures.Result
	Count  int
}

// ReportResult is one executed report.
type ReportResult struct {
	Name        string
	Measure     string
	Calculation string
	Rows        []ReportRow
}

// ReportPack executes a set of configured reports against an incident list.
type ReportPack struct {
	logger  *slog.Logger
	reports []ReportSpec
}

// NewReportPack loads reports from the provided path. If the path is empty
// or missing, returns a nil pack.
func NewReportPack(path string, logger *slog.Logger) (*ReportPack, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var file ReportPackFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ReportPack{logger: logger, reports: file.Reports}, nil
}

// Reports returns the loaded specs.
func (p *ReportPack) Reports() []ReportSpec {
	if p == nil {
		return nil
	}
	return p.reports
}

// Run executes every report against the incidents in pack order.
func (p *ReportPack) Run(incidents []*models.Incident) ([]ReportResult, error) {
	if p == nil {
		return nil, nil
	}
	results := make([]ReportResult, 0, len(p.reports))
	for _, spec := range p.reports {
		result, err := p.execute(spec, incidents)
		if err != nil {
			return nil, utils.NewAppError("reports.Run", fmt.Sprintf("report %q", spec.Name), err)
		}
		results = append(results, result)
	}
	return results, nil
}

func (p *ReportPack) execute(spec ReportSpec, incidents []*models.Incident) (ReportResult, error) {
	if len(spec.Dimensions) == 0 {
		spec.Dimensions = []ReportDimension{{Name: "None"}}
	}

	dims := make([]aggregate.Aggregator, 0, len(spec.Dimensions))
	for _, d := range spec.Dimensions {
		dim, err := aggregate.New(d.Name, d.Param)
		if err != nil {
			return ReportResult{}, err
		}
		if len(d.Filter) > 0 {
			keys := make([]aggregate.Key, 0, len(d.Filter))
			for _, f := range d.Filter {
				keys = append(keys, aggregate.ParseKey(f))
			}
			dim.SetFilter(keys)
		}
		dims = append(dims, dim)
	}

	measure, err := measures.New(spec.Measure)
	if err != nil {
		return ReportResult{}, err
	}
	if err := configurePeriod(measure, spec); err != nil {
		return ReportResult{}, err
	}

	var reducer calc.Delegate
	if spec.Calculation != "" {
		reducer, err = calc.New(spec.Calculation)
		if err != nil {
			return ReportResult{}, err
		}
		if parameterized, ok := reducer.(calc.Parameterized); ok && spec.Param != nil {
			if err := parameterized.SetParam(*spec.Param); err != nil {
				return ReportResult{}, err
			}
		}
	}

	result := ReportResult{
		Name:        spec.Name,
		Measure:     spec.Measure,
		Calculation: spec.Calculation,
	}

	if len(dims) == 1 {
		result.Rows = p.singleDimension(dims[0], measure, reducer, incidents)
		return result, nil
	}
	result.Rows = p.pivoted(dims, measure, reducer, incidents)
	return result, nil
}

func (p *ReportPack) singleDimension(dim aggregate.Aggregator, measure measures.Delegate, reducer calc.Delegate, incidents []*models.Incident) []ReportRow {
	groups := aggregate.Groups(dim, incidents)
	byKey := make(map[aggregate.Key][]*models.Incident, len(groups))
	for _, g := range groups {
		byKey[g.Key] = g.Members
	}
	measured := measure.Calculate(byKey, reducer)

	rows := make([]ReportRow, 0, len(groups))
	for _, g := range groups {
		rows = append(rows, ReportRow{
			Keys:   []aggregate.Key{g.Key},
			Result: measured[g.Key],
			Count:  len(g.Members),
		})
	}
	return rows
}

// pivoted measures each leaf of the dimension tree, emitting one row per
// full key path in tree order.
func (p *ReportPack) pivoted(dims []aggregate.Aggregator, measure measures.Delegate, reducer calc.Delegate, incidents []*models.Incident) []ReportRow {
	root := aggregate.GetAggregatedData(dims, incidents)

	var rows []ReportRow
	var walk func(node *aggregate.PivotNode, path []aggregate.Key)
	walk = func(node *aggregate.PivotNode, path []aggregate.Key) {
		if node.IsLeaf() {
			if len(path) == 0 {
				return
			}
			leafKey := path[len(path)-1]
			measured := measure.Calculate(map[aggregate.Key][]*models.Incident{leafKey: node.Incidents}, reducer)
			rows = append(rows, ReportRow{
				Keys:   append([]aggregate.Key(nil), path...),
				Result: measured[leafKey],
				Count:  len(node.Incidents),
			})
			return
		}
		for _, child := range node.Children {
			walk(child.Node, append(path, child.Key))
		}
	}
	walk(root, nil)
	return rows
}

// configurePeriod passes the report window to measures that span one, such
// as Utilization.
func configurePeriod(measure measures.Delegate, spec ReportSpec) error {
	setter, ok := measure.(interface {
		SetPeriod(start, end time.Time) error
	})
	if !ok {
		return nil
	}
	if spec.WindowStart == "" && spec.WindowEnd == "" {
		return nil
	}
	from, to, err := utils.ParseWindow(spec.WindowStart, spec.WindowEnd)
	if err != nil {
		return err
	}
	return setter.SetPeriod(from, to)
}
