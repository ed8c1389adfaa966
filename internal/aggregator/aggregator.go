// Package aggregator implements the Result Aggregator (spec.md §4.6/C8):
// the final pass over a completed Execution Flow that infers (or honors) a
// task's declared output type, merges terminal steps' outputs with
// role-specific rules, and resolves overlapping content between terminal
// steps before producing one typed Artifact.
//
// Grounded on spec.md §4.6 directly (no teacher file aggregates multiple
// step outputs into one deliverable — its orchestrator returns the last
// step's raw output). The similarity heuristics are a small, self-contained
// piece of text-processing logic in the teacher's own idiom: plain
// functions over stdlib strings/math, no external NLP dependency, matching
// how the teacher itself never reaches for a third-party text-similarity
// library anywhere in its tree.
package aggregator

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/example/agent-orchestrator/internal/eventbus"
	"github.com/example/agent-orchestrator/internal/flow"
	"github.com/example/agent-orchestrator/internal/models"
)

// overlapThreshold is spec.md §4.6's "cosine-similarity or literal overlap
// > 80%" conflict-detection cutoff.
const overlapThreshold = 0.8

// bucket classifies a role into one of the three merge-rule families of
// spec.md §4.6: "text roles concatenate with headings; code roles produce
// a file tree; image/video roles collect binary URIs."
type bucket string

const (
	bucketText   bucket = "text"
	bucketCode   bucket = "code"
	bucketBinary bucket = "binary"
)

var roleBucket = map[string]bucket{
	"searcher":          bucketText,
	"researcher":        bucketText,
	"analyst":           bucketText,
	"writer":            bucketText,
	"translator":        bucketText,
	"fact_checker":      bucketText,
	"summarizer":        bucketText,
	"creative":          bucketText,
	"image_analyst":     bucketText,
	"coder":             bucketCode,
	"text_to_image":     bucketBinary,
	"text_to_video":     bucketBinary,
	"image_to_video":    bucketBinary,
	"voice_synthesizer": bucketBinary,
}

// bucketOutputType picks the OutputType a single role's bucket produces,
// used when inferring "auto" and when labelling a composite's parts.
var bucketOutputType = map[bucket]models.OutputType{
	bucketText:   models.OutputReport,
	bucketCode:   models.OutputCode,
	bucketBinary: models.OutputImage,
}

// Aggregator builds the final Artifact for one task from its Flow.
type Aggregator struct {
	Bus *eventbus.Bus
}

// New returns an Aggregator, optionally wired to an Event Bus for
// dropped-output warning events (spec.md §4.6's conflict resolution).
func New(bus *eventbus.Bus) *Aggregator {
	return &Aggregator{Bus: bus}
}

// Aggregate examines task's declared output type and produces the final
// Artifact from f's terminal (no-successor), completed steps.
func (a *Aggregator) Aggregate(f *flow.Flow, task *models.Task, taskID string) *models.Artifact {
	terminal := terminalCompleted(f)
	terminal = a.resolveConflicts(taskID, terminal)

	switch task.OutputType {
	case models.OutputComposite:
		return a.buildComposite(terminal)
	case "", models.OutputAuto:
		return a.mergeBucket(dominantBucket(terminal), terminal, inferOutputType(terminal))
	default:
		return a.mergeBucket(dominantBucket(terminal), terminal, task.OutputType)
	}
}

// terminalCompleted returns every completed step with no dependent step,
// ordered by completion time (spec.md §4.6 operates over "terminal
// (no-successor) steps").
func terminalCompleted(f *flow.Flow) []*models.Step {
	snapshot := f.Snapshot()
	hasDependent := map[string]bool{}
	for _, s := range snapshot {
		for _, dep := range s.Deps {
			hasDependent[dep] = true
		}
	}
	var terminal []*models.Step
	for _, s := range snapshot {
		if s.Status == models.StepCompleted && !hasDependent[s.ID] {
			terminal = append(terminal, s)
		}
	}
	sort.SliceStable(terminal, func(i, j int) bool {
		ti, tj := terminal[i].CompletedAt, terminal[j].CompletedAt
		if ti == nil || tj == nil {
			return terminal[i].Ordinal < terminal[j].Ordinal
		}
		return ti.Before(*tj)
	})
	return terminal
}

// resolveConflicts drops the earlier-completed step of any pair whose text
// output overlaps past overlapThreshold, emitting a task_log warning event
// for each drop (spec.md §4.6 conflict resolution).
func (a *Aggregator) resolveConflicts(taskID string, steps []*models.Step) []*models.Step {
	dropped := map[string]bool{}
	for i := 0; i < len(steps); i++ {
		if dropped[steps[i].ID] {
			continue
		}
		for j := i + 1; j < len(steps); j++ {
			if dropped[steps[j].ID] {
				continue
			}
			ti, oki := stringOutput(steps[i])
			tj, okj := stringOutput(steps[j])
			if !oki || !okj {
				continue
			}
			if !overlaps(ti, tj) {
				continue
			}
			// steps[j] completed no earlier than steps[i] by construction
			// (terminalCompleted sorts by completion time), so i is dropped.
			dropped[steps[i].ID] = true
			a.publish(taskID, models.EventTaskLog, map[string]any{
				"level":   "warning",
				"message": fmt.Sprintf("dropped overlapping output from step %s in favor of %s", steps[i].ID, steps[j].ID),
			})
			break
		}
	}
	var out []*models.Step
	for _, s := range steps {
		if !dropped[s.ID] {
			out = append(out, s)
		}
	}
	return out
}

func (a *Aggregator) buildComposite(steps []*models.Step) *models.Artifact {
	byBucket := map[bucket][]*models.Step{}
	for _, s := range steps {
		b := roleBucket[s.Role]
		if b == "" {
			b = bucketText
		}
		byBucket[b] = append(byBucket[b], s)
	}
	parts := map[string]*models.Artifact{}
	for b, group := range byBucket {
		parts[string(b)] = a.mergeBucket(b, group, bucketOutputType[b])
	}
	return &models.Artifact{Type: models.OutputComposite, Parts: parts}
}

func (a *Aggregator) mergeBucket(b bucket, steps []*models.Step, outType models.OutputType) *models.Artifact {
	switch b {
	case bucketCode:
		return mergeCode(steps, outType)
	case bucketBinary:
		return mergeBinary(steps, outType)
	default:
		return mergeText(steps, outType)
	}
}

// mergeText concatenates each step's output under a heading naming the
// step, per spec.md §4.6 ("text roles concatenate with headings").
func mergeText(steps []*models.Step, outType models.OutputType) *models.Artifact {
	var b strings.Builder
	for i, s := range steps {
		text, _ := stringOutput(s)
		if i > 0 {
			b.WriteString("\n\n")
		}
		heading := s.Name
		if heading == "" {
			heading = s.ID
		}
		fmt.Fprintf(&b, "## %s\n\n%s", heading, text)
	}
	return &models.Artifact{Type: outType, Text: b.String()}
}

// mergeCode produces a file tree keyed by a synthesized path per step, per
// spec.md §4.6 ("code roles produce a file tree").
func mergeCode(steps []*models.Step, outType models.OutputType) *models.Artifact {
	files := map[string]string{}
	for _, s := range steps {
		text, _ := stringOutput(s)
		path := s.Name
		if path == "" {
			path = s.ID
		}
		files[sanitizeFilename(path)] = text
	}
	return &models.Artifact{Type: outType, Files: files}
}

// mergeBinary collects each step's output as a URI, per spec.md §4.6
// ("image/video roles collect binary URIs"). Non-URI-shaped output is
// passed through as-is; the Sub-Agent/tool layer is responsible for
// producing an actual URI for binary-output roles.
func mergeBinary(steps []*models.Step, outType models.OutputType) *models.Artifact {
	var uris []string
	for _, s := range steps {
		text, _ := stringOutput(s)
		if text != "" {
			uris = append(uris, text)
		}
	}
	return &models.Artifact{Type: outType, URIs: uris}
}

func dominantBucket(steps []*models.Step) bucket {
	counts := map[bucket]int{}
	for _, s := range steps {
		b := roleBucket[s.Role]
		if b == "" {
			b = bucketText
		}
		counts[b]++
	}
	best := bucketText
	bestCount := -1
	// Stable order so ties resolve deterministically in favor of text, then
	// code, then binary.
	for _, b := range []bucket{bucketText, bucketCode, bucketBinary} {
		if counts[b] > bestCount {
			best = b
			bestCount = counts[b]
		}
	}
	return best
}

func inferOutputType(steps []*models.Step) models.OutputType {
	return bucketOutputType[dominantBucket(steps)]
}

func stringOutput(s *models.Step) (string, bool) {
	text, ok := s.Output.(string)
	return text, ok
}

func (a *Aggregator) publish(taskID string, t models.EventType, payload any) {
	if a.Bus == nil {
		return
	}
	a.Bus.Publish(models.Event{Type: t, TaskID: taskID, Payload: payload, Timestamp: time.Now()})
}

func sanitizeFilename(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '/':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	s := b.String()
	if s == "" {
		return "output.txt"
	}
	return s
}

// overlaps reports whether a and b are likely the same content, by either
// cosine similarity of their word-frequency vectors or literal substring
// overlap, per spec.md §4.6.
func overlaps(a, b string) bool {
	return cosineSimilarity(a, b) > overlapThreshold || literalOverlapRatio(a, b) > overlapThreshold
}

func cosineSimilarity(a, b string) float64 {
	va := termFreq(a)
	vb := termFreq(b)
	if len(va) == 0 || len(vb) == 0 {
		return 0
	}
	var dot, na, nb float64
	for term, ca := range va {
		dot += ca * vb[term]
	}
	for _, c := range va {
		na += c * c
	}
	for _, c := range vb {
		nb += c * c
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func termFreq(s string) map[string]float64 {
	freq := map[string]float64{}
	for _, word := range strings.Fields(strings.ToLower(s)) {
		freq[word]++
	}
	return freq
}

// literalOverlapRatio returns the longest common substring's length
// relative to the shorter input's length.
func literalOverlapRatio(a, b string) float64 {
	shorter, longer := a, b
	if len(a) > len(b) {
		shorter, longer = b, a
	}
	if len(shorter) == 0 {
		return 0
	}
	lcs := longestCommonSubstringLen(shorter, longer)
	return float64(lcs) / float64(len(shorter))
}

func longestCommonSubstringLen(a, b string) int {
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	best := 0
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				curr[j] = prev[j-1] + 1
				if curr[j] > best {
					best = curr[j]
				}
			} else {
				curr[j] = 0
			}
		}
		prev, curr = curr, prev
	}
	return best
}
