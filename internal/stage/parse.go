package stage

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseStages parses stages from the CLI format "30s:100:populate,60s:2:measure".
//
// The kind segment is optional; when omitted the first stage is a populate
// stage and the rest are measure stages.
func ParseStages(s string) ([]Stage, error) {
	var stages []Stage

	parts := strings.Split(s, ",")
	for i, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		fields := strings.Split(part, ":")
		if len(fields) < 2 || len(fields) > 3 {
			return nil, fmt.Errorf("stage %d: expected 'duration:target[:kind]' format, got '%s'", i+1, part)
		}

		duration, err := time.ParseDuration(fields[0])
		if err != nil {
			return nil, fmt.Errorf("stage %d: invalid duration '%s': %w", i+1, fields[0], err)
		}

		target, err := strconv.Atoi(fields[1])
		if err != nil {
			return nil, fmt.Errorf("stage %d: invalid target '%s': %w", i+1, fields[1], err)
		}

		kind := KindMeasure
		if len(stages) == 0 {
			kind = KindPopulate
		}
		if len(fields) == 3 {
			kind = Kind(fields[2])
		}

		stages = append(stages, Stage{
			Duration: duration,
			Target:   target,
			Kind:     kind,
			Name:     fmt.Sprintf("stage-%d", len(stages)+1),
		})
	}

	if len(stages) == 0 {
		return nil, fmt.Errorf("at least one stage is required")
	}

	return stages, nil
}
