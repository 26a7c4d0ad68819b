package utils

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	FuncIDOffset = 15 // FuncIDOffset funcid偏移.
	SetIDOffset  = 23 // SetIDOffset setid偏移.
	AreaIDOffset = 27 // AreaIDOffset areaid偏移.
)

const (
	_instIDMask = 0x00007FFF
	_funcIDMask = 0x000000FF
	_setIDMask  = 0x0000000F
	_areaIDMask = 0x0000001F
)

// NodeID packs area.set.func.inst into 32 bits:
// area(5) | set(4) | func(8) | inst(15).
type NodeID uint32

// ParseNodeID accepts either a plain integer or the dotted "area.set.func.inst" form.
func ParseNodeID(s string) (NodeID, error) {
	s = strings.TrimSpace(s)
	if !strings.Contains(s, ".") {
		v, err := strconv.ParseUint(s, 10, 32)
		if err != nil {
			return 0, fmt.Errorf("nodeid:%s format failed: %w", s, err)
		}
		return NodeID(v), nil
	}

	var area, set, fn, inst int
	if n, err := fmt.Sscanf(s, "%d.%d.%d.%d", &area, &set, &fn, &inst); err != nil || n < 4 {
		return 0, fmt.Errorf("nodeid:%s format failed", s)
	}
	return MakeNodeID(area, set, fn, inst)
}

// MakeNodeID builds a NodeID from its parts.
func MakeNodeID(area, set, fn, inst int) (NodeID, error) {
	if area <= 0 || set < 0 || fn <= 0 || inst <= 0 {
		return 0, fmt.Errorf("nodeid:%d.%d.%d.%d invalid", area, set, fn, inst)
	}
	if area > _areaIDMask || set > _setIDMask || fn > _funcIDMask || inst > _instIDMask {
		return 0, fmt.Errorf("nodeid:%d.%d.%d.%d max_nodeid:%d.%d.%d.%d invalid",
			area, set, fn, inst, _areaIDMask, _setIDMask, _funcIDMask, _instIDMask)
	}
	v := uint32(inst) |
		uint32(fn)<<FuncIDOffset |
		uint32(set)<<SetIDOffset |
		uint32(area)<<AreaIDOffset
	return NodeID(v), nil
}

// AreaID 区服.
func (id NodeID) AreaID() int { return int((uint32(id) >> AreaIDOffset) & _areaIDMask) }

// SetID 分组.
func (id NodeID) SetID() int { return int((uint32(id) >> SetIDOffset) & _setIDMask) }

// FuncID 功能号.
func (id NodeID) FuncID() int { return int((uint32(id) >> FuncIDOffset) & _funcIDMask) }

// InstID 实例号.
func (id NodeID) InstID() int { return int(uint32(id) & _instIDMask) }

// String returns the dotted form, or the plain number when the id has no area.
func (id NodeID) String() string {
	if id.AreaID() == 0 {
		return strconv.FormatUint(uint64(id), 10)
	}
	var sb strings.Builder
	sb.Grow(16) //nolint:gomnd
	sb.WriteString(strconv.Itoa(id.AreaID()))
	sb.WriteByte('.')
	sb.WriteString(strconv.Itoa(id.SetID()))
	sb.WriteByte('.')
	sb.WriteString(strconv.Itoa(id.FuncID()))
	sb.WriteByte('.')
	sb.WriteString(strconv.Itoa(id.InstID()))
	return sb.String()
}
