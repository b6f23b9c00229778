/*
Copyright © 2026 the Impex authors.
This file is part of Impex.

Impex is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

Impex is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with Impex.  If not, see <http://www.gnu.org/licenses/>.
*/

package impex

import (
	"context"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// Product is any retrievable entity: a Variable, a Dataset, a TimeTable or
// a Catalog.
type Product interface {
	product()
}

func (*Variable) product()  {}
func (*Dataset) product()   {}
func (*TimeTable) product() {}
func (*Catalog) product()   {}

// Config describes one Impex provider.
type Config struct {
	// Name tags the provider in inventories, cache keys and logs.
	Name string
	// ServerURL is the base URL of the provider's endpoint scripts.
	ServerURL string
	// MaxChunkDays caps the duration of one fetch window, in days.
	// Zero means the default of 10.
	MaxChunkDays int
	// Capabilities lists the endpoints the provider serves.
	Capabilities []Endpoint
	Credentials  Credentials
	NameMapping  NameMapping
	// OutputFormat selects the payload container, "CDF" or "ASCII".
	OutputFormat string
	// ProxyURL, when set, lets chunk fetches go through a remote proxy.
	ProxyURL string
	// CacheDir, when set, adds an on-disk layer to the chunk cache.
	CacheDir string
	// MemCacheEntries sizes the in-memory chunk cache (default 100).
	MemCacheEntries int
}

// DefaultMaxChunkDays is the fetch window cap applied when a provider does
// not configure one.
const DefaultMaxChunkDays = 10

// Provider retrieves products from one Impex web service, assembling
// arbitrary time ranges from bounded fetch windows.
type Provider struct {
	cfg      Config
	client   *Client
	registry *Registry
	pipeline *Pipeline
}

// NewProvider creates a provider around cfg, registering its inventory
// snapshots in registry.
func NewProvider(cfg Config, registry *Registry) *Provider {
	if cfg.MaxChunkDays <= 0 {
		cfg.MaxChunkDays = DefaultMaxChunkDays
	}
	applyMappingDefaults(&cfg.NameMapping)
	p := &Provider{
		cfg:      cfg,
		client:   NewClient(cfg.Name, cfg.ServerURL, cfg.Capabilities, cfg.Credentials, cfg.OutputFormat),
		registry: registry,
	}
	p.pipeline = NewPipeline(p.directFetch, cfg.ProxyURL, cfg.CacheDir, cfg.MemCacheEntries)
	return p
}

func applyMappingDefaults(m *NameMapping) {
	if m.RootElement == "" {
		m.RootElement = "dataCenter"
	}
	if m.TimetableListRoot == "" {
		m.TimetableListRoot = "timeTableList"
	}
	if m.CatalogListRoot == "" {
		m.CatalogListRoot = "catalogList"
	}
	if m.ParameterListRoot == "" {
		m.ParameterListRoot = "paramList"
	}
}

// Name returns the provider tag.
func (p *Provider) Name() string { return p.cfg.Name }

// Client exposes the underlying endpoint client.
func (p *Provider) Client() *Client { return p.client }

// IsServerUp reports whether the provider currently answers requests.
func (p *Provider) IsServerUp() bool { return p.client.Alive() }

// maxChunk returns the fetch window cap as a duration.
func (p *Provider) maxChunk() time.Duration {
	return time.Duration(p.cfg.MaxChunkDays) * 24 * time.Hour
}

// Inventory returns the provider's current inventory snapshot.
func (p *Provider) Inventory() (*Inventory, error) {
	inv, ok := p.registry.Inventory(p.cfg.Name)
	if !ok {
		return nil, fmt.Errorf("impex: no inventory for provider %s; call UpdateInventory first", p.cfg.Name)
	}
	return inv, nil
}

// UpdateInventory rebuilds the provider's product tree from the remote
// descriptions and atomically replaces the registered snapshot. The public
// pass always runs; the user-scoped pass runs when credentials are valid
// and adds private subtrees without overwriting public siblings.
func (p *Provider) UpdateInventory() error {
	root := NewNode(NamespaceNode, p.cfg.Name, p.cfg.Name, p.cfg.Name, true, nil)

	obs, err := p.client.ObsDataTree()
	if err != nil {
		return fmt.Errorf("impex: fetching %s observation tree: %v", p.cfg.Name, err)
	}
	params, err := BuildInventory(obs, p.cfg.Name, p.cfg.NameMapping, true)
	if err != nil {
		return err
	}
	params.Name, params.UID = "Parameters", "Parameters"
	root.AddChild("Parameters", params)

	if p.client.IsCapable(EndpointListTimetables) {
		timetables := NewNode(NamespaceNode, "TimeTables", "TimeTables", p.cfg.Name, true, nil)
		shared, err := p.buildSection(p.client.TimeTableList, false, p.cfg.NameMapping.TimetableListRoot,
			"SharedTimeTables")
		if err != nil {
			return err
		}
		timetables.AddChild("SharedTimeTables", shared)
		root.AddChild("TimeTables", timetables)
	}
	if p.client.IsCapable(EndpointListCatalogs) {
		catalogs := NewNode(NamespaceNode, "Catalogs", "Catalogs", p.cfg.Name, true, nil)
		shared, err := p.buildSection(p.client.CatalogList, false, p.cfg.NameMapping.CatalogListRoot,
			"SharedCatalogs")
		if err != nil {
			return err
		}
		catalogs.AddChild("SharedCatalogs", shared)
		root.AddChild("Catalogs", catalogs)
	}

	if p.cfg.Credentials.Valid() {
		if err := p.buildPrivateInventory(root); err != nil {
			return err
		}
	}

	p.registry.Replace(Flatten(p.cfg.Name, root))
	return nil
}

// buildSection fetches one list document and builds its subtree under the
// given display name.
func (p *Provider) buildSection(fetch func(bool) ([]byte, error), useCredentials bool,
	rootElement, name string) (*Node, error) {
	raw, err := fetch(useCredentials)
	if err != nil {
		return nil, fmt.Errorf("impex: fetching %s %s: %v", p.cfg.Name, name, err)
	}
	m := p.cfg.NameMapping
	m.RootElement = rootElement
	node, err := BuildInventory(raw, p.cfg.Name, m, !useCredentials)
	if err != nil {
		return nil, err
	}
	node.Name, node.UID = name, name
	return node, nil
}

// buildPrivateInventory adds the user-scoped subtrees: MyTimeTables,
// MyCatalogs and DerivedParameters.
func (p *Provider) buildPrivateInventory(root *Node) error {
	if p.client.IsCapable(EndpointListTimetables) {
		mine, err := p.buildSection(p.client.TimeTableList, true, p.cfg.NameMapping.TimetableListRoot,
			"MyTimeTables")
		if err != nil {
			return err
		}
		root.Child("TimeTables").AddChild("MyTimeTables", mine)
	}
	if p.client.IsCapable(EndpointListCatalogs) {
		mine, err := p.buildSection(p.client.CatalogList, true, p.cfg.NameMapping.CatalogListRoot,
			"MyCatalogs")
		if err != nil {
			return err
		}
		root.Child("Catalogs").AddChild("MyCatalogs", mine)
	}
	if p.client.IsCapable(EndpointListParameters) {
		raw, err := p.client.DerivedParameterList()
		if err != nil {
			return err
		}
		m := p.cfg.NameMapping
		m.RootElement = m.ParameterListRoot
		derived, err := BuildInventory(raw, p.cfg.Name, m, false)
		if err != nil {
			return err
		}
		derived.Name, derived.UID = "DerivedParameters", "DerivedParameters"
		root.AddChild("DerivedParameters", derived)
	}
	return nil
}

// GetData retrieves any product by identifier. Datasets and parameters
// need a time range; timetables and catalogs ignore it. A nil result with
// a nil error means the request fell outside the product's definition
// range.
func (p *Provider) GetData(product string, start, stop time.Time) (Product, error) {
	inv, err := p.Inventory()
	if err != nil {
		return nil, err
	}
	switch inv.ProductType(product) {
	case DatasetProduct:
		ds, err := p.GetDataset(product, start, stop)
		if ds == nil {
			return nil, err
		}
		return ds, err
	case ParameterProduct, ComponentProduct:
		v, err := p.GetParameter(product, start, stop)
		if v == nil {
			return nil, err
		}
		return v, err
	case TimetableProduct:
		tt, err := p.GetTimeTable(product)
		if tt == nil {
			return nil, err
		}
		return tt, err
	case CatalogProduct:
		c, err := p.GetCatalog(product)
		if c == nil {
			return nil, err
		}
		return c, err
	}
	return nil, &UnknownProductError{Provider: p.cfg.Name, ID: product}
}

// productVariables lists the raw sub-variables composing a product. Some
// dialects store vector components as separate variables declared in the
// parameter metadata.
func productVariables(inv *Inventory, product string) []string {
	var node *Node
	if n, ok := inv.Parameters[product]; ok {
		node = n
	} else if n, ok := inv.Components[product]; ok {
		node = n
	}
	if node != nil {
		if v, ok := node.Meta["var"]; ok && v != "" {
			return strings.Split(v, ".")
		}
	}
	return []string{product}
}

// GetParameter retrieves one parameter (or component) over [start, stop),
// splitting the range into bounded windows and merging the partial results
// into one continuous variable. Failed windows are skipped, not retried.
func (p *Provider) GetParameter(product string, start, stop time.Time) (*Variable, error) {
	inv, err := p.Inventory()
	if err != nil {
		return nil, err
	}
	switch inv.ProductType(product) {
	case ParameterProduct, ComponentProduct:
	default:
		return nil, &UnknownProductError{Provider: p.cfg.Name, ID: product}
	}
	r := NewTimeRange(start, stop)

	restricted := p.HasTimeRestriction(product, r)
	if restricted && !p.cfg.Credentials.Valid() {
		return nil, &MissingCredentialsError{Provider: p.cfg.Name}
	}
	useCredentials := restricted || inv.IsUserProduct(product)

	if defRange, ok := p.ParameterRange(product); ok && !defRange.Intersects(r) {
		log.Warnf("you are requesting %s outside of its definition range %s", product, defRange)
		return nil, nil
	}

	names := productVariables(inv, product)
	var acc *Variable
	for _, chunk := range r.Split(p.maxChunk()) {
		log.Debugf("get data: product=%s start=%s stop=%s", product, chunk.Start, chunk.Stop)
		v, err := p.pipeline.Fetch(context.TODO(), FetchRequest{
			Provider:       p.cfg.Name,
			Product:        product,
			Names:          names,
			Range:          chunk,
			Format:         p.client.OutputFormat,
			UseCredentials: useCredentials,
			NoProxy:        restricted,
			NoCache:        restricted,
		})
		if err != nil {
			log.Warnf("skipping chunk %s of %s: %v", chunk, product, err)
			continue
		}
		merged, err := Merge(acc, v)
		if err != nil {
			log.Warnf("skipping chunk %s of %s: %v", chunk, product, err)
			continue
		}
		acc = merged
	}
	return acc, nil
}

// directFetch is the innermost pipeline step: ask the provider to produce
// the chunk, download it, and decode it.
func (p *Provider) directFetch(_ context.Context, req FetchRequest) (*Variable, error) {
	fileURL, err := p.client.ParameterURL(req.Range, req.Product, req.Format, req.UseCredentials, req.Headers)
	if err != nil {
		return nil, err
	}
	body, err := p.client.Download(fileURL)
	if err != nil {
		return nil, err
	}
	v, err := Decode(req.Format, body, req.Names)
	if err != nil {
		return nil, err
	}
	if v != nil && len(req.Names) > 1 {
		v.Name = req.Product
	}
	return v, nil
}

// GetDataset retrieves every parameter of a dataset over [start, stop) and
// returns them keyed by display name. Parameters are fetched one after
// another; each is merged independently.
func (p *Provider) GetDataset(dataset string, start, stop time.Time) (*Dataset, error) {
	inv, err := p.Inventory()
	if err != nil {
		return nil, err
	}
	node, ok := inv.Datasets[dataset]
	if !ok {
		return nil, &UnknownProductError{Provider: p.cfg.Name, ID: dataset}
	}
	r := NewTimeRange(start, stop)
	if defRange, ok := p.DatasetRange(dataset); ok && !defRange.Intersects(r) {
		log.Warnf("you are requesting %s outside of its definition range %s", dataset, defRange)
		return nil, nil
	}

	ds := &Dataset{
		Name:      node.Name,
		Variables: make(map[string]*Variable),
		Meta:      make(map[string]string, len(node.Meta)),
	}
	mergeMeta(ds.Meta, node.Meta)
	for _, param := range p.ListParameters(dataset) {
		v, err := p.GetParameter(param.UID, start, stop)
		if err != nil {
			return nil, err
		}
		ds.Variables[param.Name] = v
	}
	return ds, nil
}

// GetTimeTable downloads a timetable by identifier, using credentials for
// user-owned ones. Index metadata is merged into the result.
func (p *Provider) GetTimeTable(id string) (*TimeTable, error) {
	inv, err := p.Inventory()
	if err != nil {
		return nil, err
	}
	node, ok := inv.Timetables[id]
	if !ok {
		return nil, &UnknownProductError{Provider: p.cfg.Name, ID: id}
	}
	body, err := p.client.TimetableFile(id, !node.Public)
	if err != nil {
		return nil, err
	}
	tt, err := ParseTimeTable(node.Name, body)
	if err != nil {
		return nil, err
	}
	mergeMeta(tt.Meta, node.Meta)
	return tt, nil
}

// GetCatalog downloads a catalog by identifier, using credentials for
// user-owned ones. Index metadata is merged into the result.
func (p *Provider) GetCatalog(id string) (*Catalog, error) {
	inv, err := p.Inventory()
	if err != nil {
		return nil, err
	}
	node, ok := inv.Catalogs[id]
	if !ok {
		return nil, &UnknownProductError{Provider: p.cfg.Name, ID: id}
	}
	body, err := p.client.CatalogFile(id, !node.Public)
	if err != nil {
		return nil, err
	}
	cat, err := ParseCatalog(node.Name, body)
	if err != nil {
		return nil, err
	}
	mergeMeta(cat.Meta, node.Meta)
	return cat, nil
}

func mergeMeta(dst, src map[string]string) {
	for k, v := range src {
		if _, ok := dst[k]; !ok {
			dst[k] = v
		}
	}
}

// HasTimeRestriction reports whether the parent dataset of product
// declares a restricted sub-range intersecting r. Restricted requests are
// forced onto authenticated direct fetches.
func (p *Provider) HasTimeRestriction(product string, r TimeRange) bool {
	inv, err := p.Inventory()
	if err != nil {
		return false
	}
	ds, ok := inv.FindParentDataset(product)
	if !ok {
		return false
	}
	node := inv.Datasets[ds]
	lowerS, ok := node.Meta["timeRestriction"]
	if !ok {
		return false
	}
	lower, err := parseMetaTime(lowerS)
	if err != nil {
		return false
	}
	upper, err := parseMetaTime(node.Meta["stop_date"])
	if err != nil || !lower.Before(upper) {
		return false
	}
	return TimeRange{Start: lower, Stop: upper}.Intersects(r)
}

// ParameterRange returns the declared definition range of a parameter,
// resolved through its parent dataset.
func (p *Provider) ParameterRange(product string) (TimeRange, bool) {
	inv, err := p.Inventory()
	if err != nil {
		return TimeRange{}, false
	}
	ds, ok := inv.FindParentDataset(product)
	if !ok {
		return TimeRange{}, false
	}
	return p.DatasetRange(ds)
}

// DatasetRange returns the declared definition range of a dataset.
func (p *Provider) DatasetRange(dataset string) (TimeRange, bool) {
	inv, err := p.Inventory()
	if err != nil {
		return TimeRange{}, false
	}
	node, ok := inv.Datasets[dataset]
	if !ok {
		return TimeRange{}, false
	}
	start, err := parseMetaTime(node.Meta["start_date"])
	if err != nil {
		return TimeRange{}, false
	}
	stop, err := parseMetaTime(node.Meta["stop_date"])
	if err != nil {
		return TimeRange{}, false
	}
	return TimeRange{Start: start, Stop: stop}, true
}

// parseMetaTime parses timestamps as they appear in inventory metadata.
func parseMetaTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("impex: empty timestamp")
	}
	if t, err := parseTimestamp(s); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// ProductType classifies an identifier against the flat inventory.
func (p *Provider) ProductType(product string) ProductKind {
	inv, err := p.Inventory()
	if err != nil {
		return UnknownProduct
	}
	return inv.ProductType(product)
}

// FindParentDataset returns the dataset owning product, which is product
// itself for datasets.
func (p *Provider) FindParentDataset(product string) (string, bool) {
	inv, err := p.Inventory()
	if err != nil {
		return "", false
	}
	return inv.FindParentDataset(product)
}

// ListDatasets lists the provider's public datasets.
func (p *Provider) ListDatasets() []*Node {
	inv, err := p.Inventory()
	if err != nil {
		return nil
	}
	return listNodes(inv.Datasets, true)
}

// ListParameters lists public parameters, or the parameters of one
// dataset (in tree order) when dataset is non-empty.
func (p *Provider) ListParameters(dataset string) []*Node {
	inv, err := p.Inventory()
	if err != nil {
		return nil
	}
	if dataset == "" {
		return listNodes(inv.Parameters, true)
	}
	node, ok := inv.Datasets[dataset]
	if !ok {
		return nil
	}
	var out []*Node
	var collect func(n *Node)
	collect = func(n *Node) {
		for _, c := range n.Children() {
			if c.Kind == ParameterNode {
				out = append(out, c)
			}
			collect(c)
		}
	}
	collect(node)
	return out
}

// ListTimetables lists the provider's public timetables.
func (p *Provider) ListTimetables() []*Node {
	inv, err := p.Inventory()
	if err != nil {
		return nil
	}
	return listNodes(inv.Timetables, true)
}

// ListCatalogs lists the provider's public catalogs.
func (p *Provider) ListCatalogs() []*Node {
	inv, err := p.Inventory()
	if err != nil {
		return nil
	}
	return listNodes(inv.Catalogs, true)
}

// ListUserParameters lists the user's private parameters.
func (p *Provider) ListUserParameters() []*Node {
	inv, err := p.Inventory()
	if err != nil {
		return nil
	}
	return listNodes(inv.Parameters, false)
}

// ListUserTimetables lists the user's private timetables.
func (p *Provider) ListUserTimetables() []*Node {
	inv, err := p.Inventory()
	if err != nil {
		return nil
	}
	return listNodes(inv.Timetables, false)
}

// ListUserCatalogs lists the user's private catalogs.
func (p *Provider) ListUserCatalogs() []*Node {
	inv, err := p.Inventory()
	if err != nil {
		return nil
	}
	return listNodes(inv.Catalogs, false)
}
