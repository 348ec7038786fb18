package detection

import (
	"encoding/json"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	rtypes "github.com/aws/aws-sdk-go-v2/service/rekognition/types"
)

const topLabelCount = 10

// NormalizeLabels converts raw detections in arrival order.
func NormalizeLabels(raw []rtypes.LabelDetection) []Label {
	labels := make([]Label, 0, len(raw))
	for _, d := range raw {
		label := Label{Instances: []rtypes.Instance{}}
		if d.Label != nil {
			label.Name = aws.ToString(d.Label.Name)
			label.Confidence = float64(aws.ToFloat32(d.Label.Confidence))
			if d.Label.Instances != nil {
				label.Instances = d.Label.Instances
			}
		}
		if d.Timestamp != 0 {
			seconds := float64(d.Timestamp) / 1000.0
			label.Timestamp = &seconds
		}
		labels = append(labels, label)
	}
	return labels
}

// Summarize lists the ten most confident labels. Equal confidences keep
// their arrival order.
func Summarize(labels []Label, duration *float64, moderation []json.RawMessage) Summary {
	sorted := make([]Label, len(labels))
	copy(sorted, labels)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Confidence > sorted[j].Confidence
	})
	if len(sorted) > topLabelCount {
		sorted = sorted[:topLabelCount]
	}

	top := make([]TopLabel, 0, len(sorted))
	for _, l := range sorted {
		top = append(top, TopLabel{Name: l.Name, Confidence: l.Confidence})
	}

	return Summary{
		TotalLabels:         len(labels),
		TopLabels:           top,
		Duration:            duration,
		HasModerationIssues: len(moderation) > 0,
	}
}

// durationSeconds converts VideoMetadata.DurationMillis; 0 or absent is nil.
func durationSeconds(meta *rtypes.VideoMetadata) *float64 {
	if meta == nil || aws.ToInt64(meta.DurationMillis) == 0 {
		return nil
	}
	seconds := float64(aws.ToInt64(meta.DurationMillis)) / 1000.0
	return &seconds
}
