package models

import (
	"errors"
	"fmt"
)

// Graph validation errors.
var (
	ErrDuplicateBlock      = errors.New("duplicate block id")
	ErrMissingTrigger      = errors.New("workflow has no trigger block")
	ErrMultipleTriggers    = errors.New("workflow has more than one trigger block")
	ErrDanglingConnection  = errors.New("connection references an unknown block")
	ErrInvalidPort         = errors.New("connection uses an invalid port")
	ErrAmbiguousConnection = errors.New("block has more than one outgoing connection on a port")
	ErrTriggerTarget       = errors.New("connection targets a trigger block")
	ErrCycle               = errors.New("workflow graph contains a cycle")
	ErrReservedBlockID     = errors.New("block id is reserved")
)

// Connection is a directed edge between two blocks.
type Connection struct {
	ID       string `json:"id"`
	From     string `json:"from"      validate:"required"`
	To       string `json:"to"        validate:"required"`
	FromPort string `json:"from_port"`
	ToPort   string `json:"to_port"`
}

// SourcePort returns the outgoing port, defaulting to "out".
func (c *Connection) SourcePort() string {
	if c.FromPort == "" {
		return PortOut
	}

	return c.FromPort
}

// Graph is the adjacency list of a workflow keyed by block id and port.
type Graph struct {
	blocks   map[string]*Block
	outgoing map[string]map[string]string
}

// NewGraph indexes a workflow's blocks and connections. It does not validate;
// use ValidateGraph for that.
func NewGraph(workflow *Workflow) *Graph {
	graph := &Graph{
		blocks:   make(map[string]*Block, len(workflow.Blocks)),
		outgoing: make(map[string]map[string]string),
	}

	for _, block := range workflow.Blocks {
		graph.blocks[block.ID] = block
	}

	for _, conn := range workflow.Connections {
		ports, ok := graph.outgoing[conn.From]
		if !ok {
			ports = make(map[string]string)
			graph.outgoing[conn.From] = ports
		}

		if _, taken := ports[conn.SourcePort()]; !taken {
			ports[conn.SourcePort()] = conn.To
		}
	}

	return graph
}

// Block returns a block by id.
func (g *Graph) Block(id string) (*Block, bool) {
	block, ok := g.blocks[id]

	return block, ok
}

// Next returns the block reached from id through port.
func (g *Graph) Next(id, port string) (string, bool) {
	target, ok := g.outgoing[id][port]

	return target, ok
}

// ValidateGraph enforces the structural rules checked at workflow-save time.
// Drafts may omit the trigger block; everything else is enforced for every status.
func ValidateGraph(workflow *Workflow) error {
	blocks := make(map[string]*Block, len(workflow.Blocks))
	triggers := 0

	for _, block := range workflow.Blocks {
		if _, dup := blocks[block.ID]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateBlock, block.ID)
		}

		if block.ID == StepStart {
			return fmt.Errorf("%w: %s", ErrReservedBlockID, block.ID)
		}

		if err := block.Check(); err != nil {
			return err
		}

		blocks[block.ID] = block

		if block.Kind == BlockKindTrigger {
			triggers++
		}
	}

	if triggers > 1 {
		return ErrMultipleTriggers
	}

	if triggers == 0 && workflow.Status != WorkflowStatusDraft {
		return ErrMissingTrigger
	}

	edges := make(map[string][]string)
	seenPorts := make(map[string]bool)

	for _, conn := range workflow.Connections {
		from, ok := blocks[conn.From]
		if !ok {
			return fmt.Errorf("%w: %s -> %s", ErrDanglingConnection, conn.From, conn.To)
		}

		to, ok := blocks[conn.To]
		if !ok {
			return fmt.Errorf("%w: %s -> %s", ErrDanglingConnection, conn.From, conn.To)
		}

		if to.Kind == BlockKindTrigger {
			return fmt.Errorf("%w: %s", ErrTriggerTarget, conn.To)
		}

		port := conn.SourcePort()
		if !validPort(from.Kind, port) {
			return fmt.Errorf("%w: %s on %s block %s", ErrInvalidPort, port, from.Kind, from.ID)
		}

		key := conn.From + "\x00" + port
		if seenPorts[key] {
			return fmt.Errorf("%w: %s:%s", ErrAmbiguousConnection, conn.From, port)
		}

		seenPorts[key] = true
		edges[conn.From] = append(edges[conn.From], conn.To)
	}

	return detectCycle(workflow.Blocks, edges)
}

func validPort(kind BlockKind, port string) bool {
	if kind == BlockKindConditional {
		return port == PortTrue || port == PortFalse
	}

	return port == PortOut
}

func detectCycle(blocks []*Block, edges map[string][]string) error {
	const (
		unvisited = iota
		visiting
		done
	)

	state := make(map[string]int, len(blocks))

	var visit func(id string) error

	visit = func(id string) error {
		switch state[id] {
		case visiting:
			return fmt.Errorf("%w: through block %s", ErrCycle, id)
		case done:
			return nil
		}

		state[id] = visiting

		for _, next := range edges[id] {
			if err := visit(next); err != nil {
				return err
			}
		}

		state[id] = done

		return nil
	}

	for _, block := range blocks {
		if err := visit(block.ID); err != nil {
			return err
		}
	}

	return nil
}
