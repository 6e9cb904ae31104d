// Package dot draws provenance documents with Graphviz.
package dot

import (
	"strings"
	"time"

	"github.com/dukex/provtrack/pkg/provenance"
	"github.com/emicklei/dot"
)

// Fill colors and shapes follow the usual PROV diagram conventions.
var nodeStyles = map[provenance.NodeKind][2]string{
	provenance.NodeEntity:   {"ellipse", "#FFFC87"},
	provenance.NodeActivity: {"box", "#9FB1FC"},
	provenance.NodeAgent:    {"house", "#FED37F"},
}

// Encode returns the DOT source of a document. Every node is followed by a
// note listing its attributes.
func Encode(doc *provenance.Document) string {
	graph := dot.NewGraph(dot.Directed)
	graph.Attr("rankdir", "BT")
	graph.Attr("charset", "utf-8")

	nodes := make(map[string]dot.Node)

	for _, group := range [][]*provenance.Node{doc.Entities, doc.Activities, doc.Agents} {
		for _, node := range group {
			nodes[node.ID] = addNode(graph, node)
		}
	}

	for _, relation := range doc.Relations {
		from, okFrom := nodes[relation.From]
		to, okTo := nodes[relation.To]

		if !okFrom || !okTo {
			continue
		}

		label := string(relation.Kind)
		if relation.Time != nil {
			label += "\n" + relation.Time.UTC().Format(time.RFC3339)
		}

		graph.Edge(from, to, label).Attr("fontsize", "10")
	}

	return graph.String()
}

func addNode(graph *dot.Graph, node *provenance.Node) dot.Node {
	style := nodeStyles[node.Kind]

	n := graph.Node(node.ID).
		Label(node.Label).
		Attr("shape", style[0]).
		Attr("style", "filled").
		Attr("fillcolor", style[1])

	lines := make([]string, 0, len(node.Attributes)+2)
	for _, attribute := range node.Attributes {
		lines = append(lines, attribute.Key+": "+attribute.Value)
	}

	if node.StartTime != nil {
		lines = append(lines, "startTime: "+node.StartTime.UTC().Format(time.RFC3339))
	}

	if node.EndTime != nil {
		lines = append(lines, "endTime: "+node.EndTime.UTC().Format(time.RFC3339))
	}

	if len(lines) == 0 {
		return n
	}

	note := graph.Node("annotation:"+node.ID).
		Label(strings.Join(lines, "\n")).
		Attr("shape", "note").
		Attr("fontsize", "10").
		Attr("color", "gray")

	graph.Edge(note, n).Attr("style", "dashed").Attr("arrowhead", "none").Attr("color", "gray")

	return n
}
