package provenance

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/dukex/provtrack/pkg/models"
)

// Namespace is the URI prefix of every node in a rendered document.
const Namespace = "https://w3id.org/provtrack/ns#"

// NodeKind is the PROV class of a node.
type NodeKind string

const (
	NodeEntity   NodeKind = "entity"
	NodeActivity NodeKind = "activity"
	NodeAgent    NodeKind = "agent"
)

// RelationKind is a PROV relation.
type RelationKind string

const (
	RelationUsed              RelationKind = "used"
	RelationWasGeneratedBy    RelationKind = "wasGeneratedBy"
	RelationWasStartedBy      RelationKind = "wasStartedBy"
	RelationWasEndedBy        RelationKind = "wasEndedBy"
	RelationActedOnBehalfOf   RelationKind = "actedOnBehalfOf"
	RelationWasAttributedTo   RelationKind = "wasAttributedTo"
	RelationWasAssociatedWith RelationKind = "wasAssociatedWith"
)

// Attribute is one key/value annotation of a node.
type Attribute struct {
	Key   string
	Value string
}

// Node is an entity, activity or agent. ID is the qualified name "<kind>:<name>".
type Node struct {
	ID         string
	Kind       NodeKind
	Label      string
	Attributes []Attribute
	StartTime  *time.Time
	EndTime    *time.Time
}

// Relation is a directed PROV relation between two nodes. Time is set on start
// and end events only.
type Relation struct {
	Kind RelationKind
	From string
	To   string
	Time *time.Time
}

// Document is a provenance graph ready to be serialized or drawn.
type Document struct {
	Namespace  string
	Entities   []*Node
	Activities []*Node
	Agents     []*Node
	Relations  []Relation
}

func nodeID(kind NodeKind, name string) string {
	return string(kind) + ":" + NormalizeName(name)
}

// BuildDocument converts a captured aggregate into a PROV document. Activities
// are numbered by a series attribute in ascending end time order; the earliest of
// them is started and the latest is ended by the workflow entity.
func BuildDocument(prov *models.Provenance) (*Document, error) {
	workflowEntity := prov.WorkflowEntity()
	if workflowEntity == nil {
		return nil, fmt.Errorf("%w: no workflow entity", ErrIncompleteGraph)
	}

	workflowActivity := prov.WorkflowActivity()
	if workflowActivity == nil {
		return nil, fmt.Errorf("%w: no workflow activity", ErrIncompleteGraph)
	}

	person := prov.Agent(models.AgentTypePerson)
	software := prov.Agent(models.AgentTypeSoftware)

	if person == nil || software == nil {
		return nil, fmt.Errorf("%w: missing agents", ErrIncompleteGraph)
	}

	doc := &Document{Namespace: Namespace}
	entityIDs := make(map[string]string, len(prov.Entities))

	for _, entity := range prov.Entities {
		node := &Node{
			ID:    nodeID(NodeEntity, entity.Name),
			Kind:  NodeEntity,
			Label: entity.Name,
			Attributes: []Attribute{
				{Key: "id", Value: entity.ID},
				{Key: "type", Value: string(entity.Type)},
				{Key: "path", Value: entity.Path},
				{Key: "name", Value: entity.Name},
			},
		}

		if entity.Size != "" {
			node.Attributes = append(node.Attributes, Attribute{Key: "size", Value: entity.Size})
		}

		if entity.LastModified != nil {
			node.Attributes = append(node.Attributes, Attribute{Key: "last_modified", Value: entity.LastModified.UTC().Format(time.RFC3339)})
		}

		entityIDs[entity.ID] = node.ID
		doc.Entities = append(doc.Entities, node)
	}

	activities := append([]*models.Activity(nil), prov.Activities...)
	sort.SliceStable(activities, func(i, j int) bool {
		if !activities[i].EndTime.Equal(activities[j].EndTime) {
			return activities[i].EndTime.Before(activities[j].EndTime)
		}

		if !activities[i].StartTime.Equal(activities[j].StartTime) {
			return activities[i].StartTime.Before(activities[j].StartTime)
		}

		return activities[i].Name < activities[j].Name
	})

	for series, activity := range activities {
		start, end := activity.StartTime, activity.EndTime
		node := &Node{
			ID:        nodeID(NodeActivity, activity.Name),
			Kind:      NodeActivity,
			Label:     activity.Name,
			StartTime: &start,
			EndTime:   &end,
			Attributes: []Attribute{
				{Key: "id", Value: activity.ID},
				{Key: "type", Value: string(activity.Type)},
				{Key: "series", Value: strconv.Itoa(series + 1)},
			},
		}

		doc.Activities = append(doc.Activities, node)

		for _, id := range activity.Used {
			target, ok := entityIDs[id]
			if !ok {
				return nil, fmt.Errorf("%w: activity %s used unknown entity %s", ErrIncompleteGraph, activity.Name, id)
			}

			doc.Relations = append(doc.Relations, Relation{Kind: RelationUsed, From: node.ID, To: target})
		}

		for _, id := range activity.Generated {
			source, ok := entityIDs[id]
			if !ok {
				return nil, fmt.Errorf("%w: activity %s generated unknown entity %s", ErrIncompleteGraph, activity.Name, id)
			}

			doc.Relations = append(doc.Relations, Relation{Kind: RelationWasGeneratedBy, From: source, To: node.ID})
		}
	}

	workflowNode := entityIDs[workflowEntity.ID]
	first, last := doc.Activities[0], doc.Activities[len(doc.Activities)-1]

	doc.Relations = append(doc.Relations,
		Relation{Kind: RelationWasStartedBy, From: first.ID, To: workflowNode, Time: first.StartTime},
		Relation{Kind: RelationWasEndedBy, From: last.ID, To: workflowNode, Time: last.EndTime},
	)

	personNode := &Node{
		ID:         nodeID(NodeAgent, person.Name),
		Kind:       NodeAgent,
		Label:      person.Name,
		Attributes: []Attribute{{Key: "type", Value: string(person.Type)}},
	}
	softwareNode := &Node{
		ID:         nodeID(NodeAgent, software.Name),
		Kind:       NodeAgent,
		Label:      software.Name,
		Attributes: []Attribute{{Key: "type", Value: string(software.Type)}},
	}

	doc.Agents = []*Node{personNode, softwareNode}
	doc.Relations = append(doc.Relations,
		Relation{Kind: RelationActedOnBehalfOf, From: softwareNode.ID, To: personNode.ID},
		Relation{Kind: RelationWasAttributedTo, From: workflowNode, To: softwareNode.ID},
		Relation{Kind: RelationWasAssociatedWith, From: nodeID(NodeActivity, workflowActivity.Name), To: softwareNode.ID},
	)

	return doc, nil
}

// Node returns the node with the given ID, or nil.
func (d *Document) Node(id string) *Node {
	for _, group := range [][]*Node{d.Entities, d.Activities, d.Agents} {
		for _, node := range group {
			if node.ID == id {
				return node
			}
		}
	}

	return nil
}

// Attribute returns the value of an attribute, or "".
func (n *Node) Attribute(key string) string {
	for _, attribute := range n.Attributes {
		if attribute.Key == key {
			return attribute.Value
		}
	}

	return ""
}

// relationRoles are the PROV-JSON member names of each relation's endpoints.
var relationRoles = map[RelationKind][2]string{
	RelationUsed:              {"prov:activity", "prov:entity"},
	RelationWasGeneratedBy:    {"prov:entity", "prov:activity"},
	RelationWasStartedBy:      {"prov:activity", "prov:trigger"},
	RelationWasEndedBy:        {"prov:activity", "prov:trigger"},
	RelationActedOnBehalfOf:   {"prov:delegate", "prov:responsible"},
	RelationWasAttributedTo:   {"prov:entity", "prov:agent"},
	RelationWasAssociatedWith: {"prov:activity", "prov:agent"},
}

// MarshalJSON encodes the document as PROV-JSON.
func (d *Document) MarshalJSON() ([]byte, error) {
	out := map[string]any{
		"prefix": map[string]string{
			"provtrack": d.Namespace,
			"entity":    d.Namespace + "entity/",
			"activity":  d.Namespace + "activity/",
			"agent":     d.Namespace + "agent/",
		},
	}

	for kind, nodes := range map[string][]*Node{"entity": d.Entities, "activity": d.Activities, "agent": d.Agents} {
		members := make(map[string]map[string]string, len(nodes))

		for _, node := range nodes {
			member := map[string]string{"prov:label": node.Label}
			for _, attribute := range node.Attributes {
				member["provtrack:"+attribute.Key] = attribute.Value
			}

			if node.StartTime != nil {
				member["prov:startTime"] = node.StartTime.UTC().Format(time.RFC3339)
			}

			if node.EndTime != nil {
				member["prov:endTime"] = node.EndTime.UTC().Format(time.RFC3339)
			}

			members[node.ID] = member
		}

		out[kind] = members
	}

	counters := make(map[RelationKind]int)

	for _, relation := range d.Relations {
		roles, ok := relationRoles[relation.Kind]
		if !ok {
			return nil, fmt.Errorf("unknown relation %s", relation.Kind)
		}

		counters[relation.Kind]++

		member := map[string]string{roles[0]: relation.From, roles[1]: relation.To}
		if relation.Time != nil {
			member["prov:time"] = relation.Time.UTC().Format(time.RFC3339)
		}

		group, _ := out[string(relation.Kind)].(map[string]map[string]string)
		if group == nil {
			group = make(map[string]map[string]string)
			out[string(relation.Kind)] = group
		}

		group["_:"+string(relation.Kind)+strconv.Itoa(counters[relation.Kind])] = member
	}

	return json.Marshal(out)
}
