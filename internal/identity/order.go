package identity

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/Ning0612/ipmtool/internal/domain"
)

// OrderList is the explicit load order, highest priority first
type OrderList struct {
	Order []string `json:"order" yaml:"order"`
	// Exists reports whether the order file was present. An empty but present
	// file still counts: it disables the manual-order prompt.
	Exists bool `json:"exists" yaml:"exists"`
}

// ReadExplicitOrder reads the newline-delimited order file at root/fileName.
// A missing or unreadable file yields an empty list with Exists=false.
func ReadExplicitOrder(root, fileName string) OrderList {
	data, err := os.ReadFile(filepath.Join(root, fileName))
	if err != nil {
		return OrderList{}
	}
	return OrderList{Order: ParseOrder(string(data)), Exists: true}
}

// ParseOrder splits content into trimmed, non-blank lines
func ParseOrder(content string) []string {
	var order []string
	for _, line := range strings.Split(content, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			order = append(order, line)
		}
	}
	return order
}

// Priority returns len(order)-index for a listed id, domain.NoPriority otherwise
func (o OrderList) Priority(modID string) int {
	return PriorityIn(o.Order, modID)
}

// Contains reports whether modID is listed
func (o OrderList) Contains(modID string) bool {
	return o.Priority(modID) != domain.NoPriority
}

// PriorityIn computes the priority of modID within order
func PriorityIn(order []string, modID string) int {
	for i, id := range order {
		if id == modID {
			return len(order) - i
		}
	}
	return domain.NoPriority
}
