package tools

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/example/sketchd/internal/domain"
)

// emptyCanvasReason is returned by the tools that require an existing
// scene to work on.
const emptyCanvasReason = "canvas is empty, use generate"

var nodeCountRe = regexp.MustCompile(`(\d+)[-\s]*(?:node|step|box|stage)`)

// GenerateDiagram builds a fresh diagram from the request text alone.
// It ignores the current scene and is the only tool valid when the
// canvas is empty.
func GenerateDiagram(ctx context.Context, _ *domain.Scene, request string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	count := 3
	if m := nodeCountRe.FindStringSubmatch(strings.ToLower(request)); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n > 0 && n <= 50 {
			count = n
		}
	}

	var elements []map[string]any
	var prev map[string]any
	for i := 0; i < count; i++ {
		node := newNode(fmt.Sprintf("Step %d", i+1), float64(i)*220, 0)
		elements = append(elements, node)
		if prev != nil {
			elements = append(elements, newArrow(prev, node))
		}
		prev = node
	}
	return &Result{
		Elements: elements,
		Metadata: map[string]any{"tool": string(domain.ToolGenerate), "nodes": count},
	}, nil
}

// RestructureDiagram derives a reorganized full replacement element set
// from the current scene. The canvas must be non-empty.
func RestructureDiagram(ctx context.Context, current *domain.Scene, request string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if current == nil || len(current.Elements) == 0 {
		return nil, &Failure{Reason: emptyCanvasReason}
	}

	// Relayout existing nodes on a grid, keeping arrows as they are.
	const perRow = 4
	elements := make([]map[string]any, 0, len(current.Elements))
	nodeIdx := 0
	for _, el := range current.Elements {
		copied := copyElement(el)
		if copied["type"] != "arrow" {
			copied["x"] = float64(nodeIdx%perRow) * 240
			copied["y"] = float64(nodeIdx/perRow) * 160
			nodeIdx++
		}
		elements = append(elements, copied)
	}
	return &Result{
		Elements: elements,
		Metadata: map[string]any{"tool": string(domain.ToolRestructure), "request": request},
	}, nil
}

var colorRe = regexp.MustCompile(`\b(red|green|blue|yellow|orange|purple|black|white|gray|grey)\b`)

// TweakDiagram applies a small stylistic adjustment to the current
// scene. The canvas must be non-empty.
func TweakDiagram(ctx context.Context, current *domain.Scene, request string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if current == nil || len(current.Elements) == 0 {
		return nil, &Failure{Reason: emptyCanvasReason}
	}

	color := ""
	if m := colorRe.FindStringSubmatch(strings.ToLower(request)); m != nil {
		color = m[1]
	}

	elements := make([]map[string]any, 0, len(current.Elements))
	for _, el := range current.Elements {
		copied := copyElement(el)
		if color != "" && copied["type"] != "arrow" {
			copied["backgroundColor"] = color
		}
		elements = append(elements, copied)
	}
	return &Result{
		Elements: elements,
		Metadata: map[string]any{"tool": string(domain.ToolTweak), "request": request},
	}, nil
}

func newNode(label string, x, y float64) map[string]any {
	return map[string]any{
		"id":              "el_" + uuid.New().String()[:8],
		"type":            "rectangle",
		"x":               x,
		"y":               y,
		"width":           180.0,
		"height":          80.0,
		"label":           label,
		"strokeColor":     "#1e1e1e",
		"backgroundColor": "transparent",
	}
}

func newArrow(from, to map[string]any) map[string]any {
	return map[string]any{
		"id":      "el_" + uuid.New().String()[:8],
		"type":    "arrow",
		"startId": from["id"],
		"endId":   to["id"],
	}
}

func copyElement(el map[string]any) map[string]any {
	out := make(map[string]any, len(el))
	for k, v := range el {
		out[k] = v
	}
	return out
}
