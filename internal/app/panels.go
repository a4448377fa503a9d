package app

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"airbnb_insights/internal/domain"
)

const (
	PageOverview = "overview"
	PageExplore  = "explore"
)

type PanelKind string

const (
	KindAggregate PanelKind = "aggregate"
	KindBox       PanelKind = "box"
)

// Panel describes one chart of a dashboard page. Aggregate panels use Op;
// box panels summarize Column per GroupBy.
type Panel struct {
	ID       string
	Title    string
	Kind     PanelKind
	GroupBy  domain.Column
	Op       domain.Operator
	Column   domain.Column
	TopN     int
	Order    domain.SortOrder
	Truncate bool // round values toward zero
}

func (p Panel) request() domain.AggregationRequest {
	return domain.AggregationRequest{GroupBy: p.GroupBy, Op: p.Op, TopN: p.TopN, Order: p.Order}
}

func (p Panel) validate() error {
	if p.ID == "" {
		return fmt.Errorf("panel: missing id")
	}
	if !p.GroupBy.IsCategorical() {
		return fmt.Errorf("panel %s: %w", p.ID, domain.UnknownColumn(string(p.GroupBy), "categorical"))
	}
	switch p.Kind {
	case KindAggregate:
		if p.Op.Kind == domain.OpMean && !p.Op.Column.IsNumeric() {
			return fmt.Errorf("panel %s: %w", p.ID, domain.UnknownColumn(string(p.Op.Column), "numeric"))
		}
		if p.Op.Kind != domain.OpMean && p.Op.Kind != domain.OpCount {
			return fmt.Errorf("panel %s: unsupported op %q", p.ID, p.Op.Kind)
		}
	case KindBox:
		if !p.Column.IsNumeric() {
			return fmt.Errorf("panel %s: %w", p.ID, domain.UnknownColumn(string(p.Column), "numeric"))
		}
	default:
		return fmt.Errorf("panel %s: unsupported kind %q", p.ID, p.Kind)
	}
	return nil
}

// Panels maps a page name to its ordered panels.
type Panels map[string][]Panel

func DefaultPanels() Panels {
	return Panels{
		PageOverview: {
			{ID: "top_property_types", Title: "Top 10 property types", Kind: KindAggregate, GroupBy: domain.ColPropertyType, Op: domain.Count(), TopN: 10},
			{ID: "top_hosts", Title: "Top 10 hosts by listings", Kind: KindAggregate, GroupBy: domain.ColHostName, Op: domain.Count(), TopN: 10},
			{ID: "room_types", Title: "Listings per room type", Kind: KindAggregate, GroupBy: domain.ColRoomType, Op: domain.Count()},
			{ID: "countries", Title: "Listings per country", Kind: KindAggregate, GroupBy: domain.ColCountry, Op: domain.Count()},
		},
		PageExplore: {
			{ID: "price_by_room_type", Title: "Average price by room type", Kind: KindAggregate, GroupBy: domain.ColRoomType, Op: domain.MeanOf(domain.ColPrice), Order: domain.Ascending},
			{ID: "availability_by_room_type", Title: "Availability by room type", Kind: KindBox, GroupBy: domain.ColRoomType, Column: domain.ColAvailability365},
			{ID: "price_by_country", Title: "Average price by country", Kind: KindAggregate, GroupBy: domain.ColCountry, Op: domain.MeanOf(domain.ColPrice)},
			{ID: "availability_by_country", Title: "Average availability by country", Kind: KindAggregate, GroupBy: domain.ColCountry, Op: domain.MeanOf(domain.ColAvailability365), Truncate: true},
		},
	}
}

type panelYAML struct {
	ID       string `yaml:"id"`
	Title    string `yaml:"title"`
	Kind     string `yaml:"kind"`
	GroupBy  string `yaml:"group_by"`
	Op       string `yaml:"op"`
	Column   string `yaml:"column"`
	TopN     *int   `yaml:"top_n"`
	Order    string `yaml:"order"`
	Truncate *bool  `yaml:"truncate"`
}

// LoadPanels reads a YAML file keyed by page name. A page present in the file
// replaces the default list for that page, in file order; an entry whose id
// matches a default panel inherits every field it leaves unset.
func LoadPanels(path string) (Panels, error) {
	out := DefaultPanels()
	if path == "" {
		return out, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("panels: %w", err)
	}
	var file map[string][]panelYAML
	if err := yaml.Unmarshal(b, &file); err != nil {
		return nil, fmt.Errorf("panels: parse %s: %w", path, err)
	}

	defaults := DefaultPanels()
	for page, entries := range file {
		list := make([]Panel, 0, len(entries))
		for _, e := range entries {
			p, err := e.overlay(findPanel(defaults[page], e.ID))
			if err != nil {
				return nil, fmt.Errorf("panels: page %s: %w", page, err)
			}
			if err := p.validate(); err != nil {
				return nil, fmt.Errorf("panels: page %s: %w", page, err)
			}
			list = append(list, p)
		}
		out[page] = list
	}
	return out, nil
}

func findPanel(ps []Panel, id string) Panel {
	for _, p := range ps {
		if p.ID == id {
			return p
		}
	}
	return Panel{ID: id, Kind: KindAggregate, Op: domain.Count()}
}

func (e panelYAML) overlay(p Panel) (Panel, error) {
	if e.Title != "" {
		p.Title = e.Title
	}
	if e.Kind != "" {
		p.Kind = PanelKind(e.Kind)
	}
	if e.GroupBy != "" {
		p.GroupBy = domain.Column(e.GroupBy)
	}
	if e.Column != "" {
		p.Column = domain.Column(e.Column)
	}
	switch e.Op {
	case "":
	case string(domain.OpCount):
		p.Op = domain.Count()
	case string(domain.OpMean):
		col := p.Column
		if col == "" {
			col = p.Op.Column
		}
		p.Op = domain.MeanOf(col)
	default:
		return p, fmt.Errorf("panel %s: unsupported op %q", p.ID, e.Op)
	}
	if e.Op == "" && e.Column != "" && p.Op.Kind == domain.OpMean {
		p.Op = domain.MeanOf(p.Column)
	}
	if e.TopN != nil {
		p.TopN = *e.TopN
	}
	switch e.Order {
	case "":
	case "asc":
		p.Order = domain.Ascending
	case "desc":
		p.Order = domain.Descending
	default:
		return p, fmt.Errorf("panel %s: unsupported order %q", p.ID, e.Order)
	}
	if e.Truncate != nil {
		p.Truncate = *e.Truncate
	}
	return p, nil
}
