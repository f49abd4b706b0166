// Package selectors loads the declarative CSS/XPath/JSON selector
// registry and resolves fields against parsed HTML with the CSS → XPath
// → embedded-JSON fallback chain (SPEC_FULL.md §4.1).
package selectors

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
	"gopkg.in/yaml.v3"
)

// Selector is one field's ordered set of resolution strategies.
type Selector struct {
	CSS   string `yaml:"css,omitempty"`
	XPath string `yaml:"xpath,omitempty"`
	JSON  string `yaml:"json,omitempty"`
}

// PageSelectors maps field name -> Selector for one page type (listing or
// product).
type PageSelectors map[string]Selector

// SiteSelectors holds listing and product selector sets for one site.
type SiteSelectors struct {
	Listing PageSelectors `yaml:"listing"`
	Product PageSelectors `yaml:"product"`
}

// Registry is the full site -> page-type selector map, loaded from YAML.
type Registry map[string]SiteSelectors

// Load reads and parses the registry YAML file.
func Load(path string) (Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var reg Registry
	if err := yaml.Unmarshal(data, &reg); err != nil {
		return nil, err
	}
	return reg, nil
}

// Get returns the selector set for a site, or an empty set if unknown.
func (r Registry) Get(site string) SiteSelectors {
	return r[site]
}

// Node is anything selectable: a goquery selection or an html.Node,
// unified so SelectAll/SelectOne can operate generically over either a
// full document or a scoped sub-tree (e.g. one listing card).
type Node struct {
	Doc  *goquery.Selection
	HTML *html.Node
}

// NewDocument parses a full HTML document for selection.
func NewDocument(htmlStr string) (*Node, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlStr))
	if err != nil {
		return nil, err
	}
	root, err := html.Parse(strings.NewReader(htmlStr))
	if err != nil {
		return nil, err
	}
	return &Node{Doc: doc.Selection, HTML: root}, nil
}

// FromSelection wraps an existing goquery selection (e.g. one card
// within a listing) for scoped field extraction.
func FromSelection(sel *goquery.Selection) *Node {
	return &Node{Doc: sel}
}

// SelectAll resolves sel against n, trying CSS, then XPath, and returning
// the first non-empty layer's matches. The XPath layer only runs when n
// carries an html.Node (see NewDocument); the embedded-JSON layer is
// resolved separately by SelectJSON.
func SelectAll(n *Node, sel Selector) *goquery.Selection {
	if sel.CSS != "" && n.Doc != nil {
		if found := n.Doc.Find(sel.CSS); found.Length() > 0 {
			return found
		}
	}
	if sel.XPath != "" && n.HTML != nil {
		if nodes, err := htmlquery.QueryAll(n.HTML, sel.XPath); err == nil && len(nodes) > 0 {
			return xpathNodesToSelection(n.Doc, nodes)
		}
	}
	// embedded-JSON layer is resolved by SelectJSON; SelectAll only
	// covers CSS/XPath element layers by design (JSON yields scalars).
	return emptySelection(n.Doc)
}

// SelectOne returns the first element SelectAll would return.
func SelectOne(n *Node, sel Selector) *goquery.Selection {
	all := SelectAll(n, sel)
	if all == nil || all.Length() == 0 {
		return nil
	}
	return all.First()
}

// SelectJSON scans <script> tag contents for embedded JSON payloads and
// resolves a dotted path (e.g. "props.price.value") against the first
// one that parses and contains it.
func SelectJSON(n *Node, sel Selector) (any, bool) {
	if sel.JSON == "" || n.Doc == nil {
		return nil, false
	}
	var found any
	var ok bool
	n.Doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		var payload any
		if err := json.Unmarshal([]byte(s.Text()), &payload); err != nil {
			return true
		}
		if v, exists := dottedLookup(payload, sel.JSON); exists {
			found, ok = v, true
			return false
		}
		return true
	})
	return found, ok
}

func dottedLookup(v any, path string) (any, bool) {
	parts := strings.Split(path, ".")
	cur := v
	for _, p := range parts {
		m, isMap := cur.(map[string]any)
		if !isMap {
			return nil, false
		}
		next, exists := m[p]
		if !exists {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

func xpathNodesToSelection(base *goquery.Selection, nodes []*html.Node) *goquery.Selection {
	if base == nil {
		doc := goquery.NewDocumentFromNode(nodes[0])
		return doc.Selection
	}
	return emptySelection(base).AddNodes(nodes...)
}

func emptySelection(base *goquery.Selection) *goquery.Selection {
	if base == nil {
		return nil
	}
	return base.Find("__no_match__")
}
