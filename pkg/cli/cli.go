// Package cli provides an interactive shell over the tree manager. It is a
// second transport next to the HTTP server and goes through the same six
// operations.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/chzyer/readline"

	"arbor/pkg/model"
	"arbor/pkg/tree"
)

// CLI reads commands from a readline instance and executes them against the
// tree manager.
type CLI struct {
	manager *tree.Manager
	rl      *readline.Instance
}

// New creates a shell bound to the given manager.
func New(manager *tree.Manager) (*CLI, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "arbor> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize readline: %w", err)
	}
	return &CLI{manager: manager, rl: rl}, nil
}

// Run processes commands until exit, EOF, or context cancellation.
func (c *CLI) Run(ctx context.Context) error {
	defer c.rl.Close()

	fmt.Println("arbor shell. Type 'help' for commands, 'exit' to quit.")
	for {
		if ctx.Err() != nil {
			return nil
		}
		line, err := c.rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			fmt.Println("Use 'exit' to quit.")
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		args := strings.Fields(strings.TrimSpace(line))
		if len(args) == 0 {
			continue
		}
		if args[0] == "exit" || args[0] == "quit" {
			return nil
		}
		if err := c.execute(ctx, args); err != nil {
			fmt.Println("Error:", err)
		}
	}
}

func (c *CLI) execute(ctx context.Context, args []string) error {
	switch args[0] {
	case "help":
		c.printHelp()
		return nil
	case "get":
		id, err := parseID(args, 1)
		if err != nil {
			return err
		}
		node, err := c.manager.GetNode(ctx, id)
		if err != nil {
			return err
		}
		c.printNode(node)
		return nil
	case "tree":
		id := model.RootID
		if len(args) > 1 {
			var err error
			if id, err = parseID(args, 1); err != nil {
				return err
			}
		}
		return c.printTree(ctx, id)
	case "add":
		parentID, err := parseID(args, 1)
		if err != nil {
			return err
		}
		if len(args) < 3 {
			return fmt.Errorf("usage: add <parent-id> <title>")
		}
		node, err := c.manager.InsertNode(ctx, parentID, strings.Join(args[2:], " "))
		if err != nil {
			return err
		}
		fmt.Printf("added node %d under %d at position %d\n", node.ID, parentID, node.Ordering)
		return nil
	case "rename":
		id, err := parseID(args, 1)
		if err != nil {
			return err
		}
		if len(args) < 3 {
			return fmt.Errorf("usage: rename <id> <title>")
		}
		if _, err := c.manager.UpdateNode(ctx, id, strings.Join(args[2:], " ")); err != nil {
			return err
		}
		fmt.Printf("renamed node %d\n", id)
		return nil
	case "rm":
		id, err := parseID(args, 1)
		if err != nil {
			return err
		}
		if err := c.manager.DeleteNode(ctx, id); err != nil {
			return err
		}
		fmt.Printf("deleted node %d and its subtree\n", id)
		return nil
	case "mv":
		id, err := parseID(args, 1)
		if err != nil {
			return err
		}
		newParentID, err := parseID(args, 2)
		if err != nil {
			return err
		}
		if err := c.manager.MoveNode(ctx, id, newParentID); err != nil {
			return err
		}
		fmt.Printf("moved node %d under %d\n", id, newParentID)
		return nil
	case "reorder":
		id, err := parseID(args, 1)
		if err != nil {
			return err
		}
		if len(args) < 3 {
			return fmt.Errorf("usage: reorder <id> <position>")
		}
		pos, err := strconv.Atoi(args[2])
		if err != nil {
			return fmt.Errorf("invalid position %q", args[2])
		}
		if err := c.manager.ReorderNode(ctx, id, pos); err != nil {
			return err
		}
		fmt.Printf("reordered node %d to position %d\n", id, pos)
		return nil
	default:
		return fmt.Errorf("unknown command %q, type 'help'", args[0])
	}
}

func parseID(args []string, pos int) (int64, error) {
	if len(args) <= pos {
		return 0, fmt.Errorf("missing node id")
	}
	id, err := strconv.ParseInt(args[pos], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid node id %q", args[pos])
	}
	return id, nil
}

func (c *CLI) printNode(node *model.NodeWithChildren) {
	parent := "-"
	if node.ParentID != nil {
		parent = strconv.FormatInt(*node.ParentID, 10)
	}
	fmt.Printf("[%d] %s (parent: %s, position: %d)\n", node.ID, node.Title, parent, node.Ordering)
	for _, child := range node.Children {
		fmt.Printf("  %d: [%d] %s\n", child.Ordering, child.ID, child.Title)
	}
}

// printTree renders the subtree rooted at id with indentation, using a
// worklist instead of recursion.
func (c *CLI) printTree(ctx context.Context, id int64) error {
	type entry struct {
		id    int64
		depth int
	}
	stack := []entry{{id: id}}
	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		node, err := c.manager.GetNode(ctx, current.id)
		if err != nil {
			return err
		}
		fmt.Printf("%s[%d] %s\n", strings.Repeat("  ", current.depth), node.ID, node.Title)

		// Push in reverse so the first child is printed first.
		for i := len(node.Children) - 1; i >= 0; i-- {
			stack = append(stack, entry{id: node.Children[i].ID, depth: current.depth + 1})
		}
	}
	return nil
}

func (c *CLI) printHelp() {
	fmt.Println(`Commands:
  get <id>                 show a node and its children
  tree [id]                render the subtree (default: root)
  add <parent-id> <title>  append a new child node
  rename <id> <title>      change a node's title
  rm <id>                  delete a node and its subtree
  mv <id> <parent-id>      move a node under a new parent
  reorder <id> <position>  move a node among its siblings
  help                     show this help
  exit                     quit`)
}
