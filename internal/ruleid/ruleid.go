// Package ruleid manages the per-tenant numeric identifier space for
// ModSecurity directives. Every tenant owns a contiguous block of 1000 ids;
// directive content carries its id inline as an "id:N" action.
package ruleid

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// BlockBase is the start of the reserved custom-rule id range. Tenant blocks
// are laid out linearly above it, 1000 ids per tenant.
const BlockBase = 1200000

// BlockSize is the number of directive ids reserved per tenant.
const BlockSize = 1000

// hashMod bounds hashed (non-numeric) tenant ids so blocks stay inside a
// small, collision-checked range.
const hashMod = 10000

var (
	idTokenRe   = regexp.MustCompile(`(?i)\bid\s*:\s*(\d+)`)
	idReplaceRe = regexp.MustCompile(`(?i)(\bid\s*:)\s*\d+`)
	quotedRe    = regexp.MustCompile(`"([^"]*)"`)
	directiveRe = regexp.MustCompile(`\bSecRule\b|\bSecAction\b`)
)

// ComputeBlock returns the inclusive [min, max] id block reserved for the
// tenant. Numeric tenant ids map linearly; anything else is reduced through a
// stable hash first so the result is deterministic across processes.
func ComputeBlock(tenantID string) (int, int) {
	uid, err := strconv.ParseInt(strings.TrimSpace(tenantID), 10, 64)
	if err != nil || uid < 0 {
		uid = int64(xxhash.Sum64String(tenantID) % hashMod)
	}
	min := BlockBase + int(uid)*BlockSize
	return min, min + BlockSize - 1
}

// ExtractID parses the explicit "id:N" token out of directive content.
func ExtractID(content string) (int, bool) {
	m := idTokenRe.FindStringSubmatch(content)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// InjectID places id into the directive content so that ExtractID recovers it
// afterwards. Three paths, in order: replace an existing id token in place;
// append into the last double-quoted action list; append a fresh quoted
// action segment.
func InjectID(content string, id int) string {
	if m := idReplaceRe.FindStringSubmatchIndex(content); m != nil {
		// Replace only the first token's value, keeping the "id:" prefix as written.
		return content[:m[3]] + strconv.Itoa(id) + content[m[1]:]
	}

	quotes := quotedRe.FindAllStringSubmatchIndex(content, -1)
	if len(quotes) > 0 {
		last := quotes[len(quotes)-1]
		inner := content[last[2]:last[3]]
		sep := ","
		if strings.TrimSpace(inner) == "" {
			sep = ""
		}
		return content[:last[2]] + inner + sep + "id:" + strconv.Itoa(id) + content[last[3]:]
	}

	return content + ` "id:` + strconv.Itoa(id) + `"`
}

// NextFreeID scans the block in ascending order and returns the first id not
// already used by any of the given directive contents. Returns false when all
// 1000 slots are taken.
func NextFreeID(contents []string, min, max int) (int, bool) {
	used := make(map[int]struct{}, len(contents))
	for _, c := range contents {
		if id, ok := ExtractID(c); ok {
			used[id] = struct{}{}
		}
	}
	for id := min; id <= max; id++ {
		if _, taken := used[id]; !taken {
			return id, true
		}
	}
	return 0, false
}

// InBlock reports whether id falls inside the inclusive [min, max] block.
func InBlock(id, min, max int) bool {
	return id >= min && id <= max
}

// IsDirective reports whether content looks like a ModSecurity directive,
// i.e. contains a SecRule or SecAction statement.
func IsDirective(content string) bool {
	return directiveRe.MatchString(content)
}
