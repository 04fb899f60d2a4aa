package identify

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/kozaktomas/worker-attendance/internal/backend"
	"github.com/kozaktomas/worker-attendance/internal/capture"
	"github.com/kozaktomas/worker-attendance/internal/logging"
	"github.com/sirupsen/logrus"
)

// Reference is one worker photo with its descriptor.
type Reference struct {
	Worker     backend.Worker
	PhotoURL   string
	Descriptor []float32
}

// Local matches frames against descriptors of every worker's reference photos.
type Local struct {
	source    WorkerSource
	extractor Extractor
	cache     *DescriptorCache
	threshold float64
	index     *candidateIndex
	log       logrus.FieldLogger
}

// NewLocal creates a local identifier. A nil cache keeps descriptors in memory only;
// a non-positive threshold selects DefaultThreshold.
func NewLocal(source WorkerSource, extractor Extractor, cache *DescriptorCache, threshold float64) *Local {
	if cache == nil {
		cache = NewDescriptorCache("")
	}
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Local{
		source:    source,
		extractor: extractor,
		cache:     cache,
		threshold: threshold,
		log:       logging.Default(),
	}
}

// SetLogger replaces the logger.
func (l *Local) SetLogger(log logrus.FieldLogger) {
	l.log = log
}

// EnableIndex turns on the HNSW candidate index for large worker lists.
func (l *Local) EnableIndex() {
	l.index = &candidateIndex{}
}

func (l *Local) Strategy() string {
	return StrategyLocal
}

// Threshold returns the match threshold.
func (l *Local) Threshold() float64 {
	return l.threshold
}

// Cache returns the descriptor cache.
func (l *Local) Cache() *DescriptorCache {
	return l.cache
}

// Identify extracts the frame descriptor and returns the closest worker if it is below the threshold.
func (l *Local) Identify(ctx context.Context, frame *capture.Frame) (Result, error) {
	query, err := l.extractor.Descriptor(ctx, frame.Bytes())
	if errors.Is(err, ErrNoFace) {
		return NoMatch(NoFaceMessage), nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("%w: extracting descriptor: %w", ErrIdentificationFailed, err)
	}

	workers, err := l.source.ListWorkers(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrIdentificationFailed, err)
	}

	refs, err := l.References(ctx, workers)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrIdentificationFailed, err)
	}

	best, dist := l.match(query, refs)
	if best < 0 || dist >= l.threshold {
		l.log.WithFields(logging.Fields{
			"references": len(refs),
			"distance":   dist,
		}).Info("no worker within threshold")
		return NoMatch(""), nil
	}

	l.log.WithFields(logging.Fields{
		"worker":   refs[best].Worker.ID,
		"photo":    refs[best].PhotoURL,
		"distance": dist,
	}).Info("worker identified locally")
	return Matched(refs[best].Worker, dist), nil
}

func (l *Local) match(query []float32, refs []Reference) (int, float64) {
	if l.index == nil || len(refs) <= indexCandidates {
		return BestMatch(query, refs)
	}

	l.index.rebuild(refs, referenceKey(refs))
	positions := l.index.candidates(query, indexCandidates)
	if len(positions) == 0 {
		return BestMatch(query, refs)
	}

	subset := make([]Reference, len(positions))
	for i, p := range positions {
		subset[i] = refs[p]
	}
	_, bound := BestMatch(query, subset)
	if math.IsInf(bound, 1) {
		return BestMatch(query, refs)
	}

	// The shortlist only bounds the answer. The first reference within the bound wins,
	// so ties resolve in worker order whatever the graph returned.
	for i, ref := range refs {
		if d := EuclideanDistance(query, ref.Descriptor); d <= bound {
			return i, d
		}
	}
	return -1, bound
}

func referenceKey(refs []Reference) string {
	var b strings.Builder
	for _, r := range refs {
		b.WriteString(r.PhotoURL)
		b.WriteByte('\n')
	}
	return b.String()
}

// References computes descriptors for every reference photo in worker order, then photo order.
// Photos that fail to download or hold no face are skipped. Only cancellation is fatal.
func (l *Local) References(ctx context.Context, workers []backend.Worker) ([]Reference, error) {
	var refs []Reference
	for _, w := range workers {
		for _, photoURL := range w.Images {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			desc, err := l.descriptor(ctx, photoURL)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				l.log.WithError(err).WithFields(logging.Fields{
					"worker": w.ID,
					"photo":  photoURL,
				}).Warn("skipping reference photo")
				continue
			}
			refs = append(refs, Reference{Worker: w, PhotoURL: photoURL, Descriptor: desc})
		}
	}
	return refs, nil
}

// descriptor returns the cached descriptor of a photo, computing it on first use.
func (l *Local) descriptor(ctx context.Context, photoURL string) ([]float32, error) {
	if e, ok := l.cache.Get(photoURL); ok {
		if e.NoFace {
			return nil, ErrNoFace
		}
		return e.Descriptor, nil
	}

	data, err := l.source.FetchImage(ctx, photoURL)
	if err != nil {
		return nil, err
	}

	desc, err := l.extractor.Descriptor(ctx, data)
	if errors.Is(err, ErrNoFace) {
		l.cache.PutNoFace(photoURL)
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	l.cache.Put(photoURL, desc)
	return desc, nil
}

// Warm computes descriptors for every reference photo, reporting progress after each photo.
// Returns the number of usable references.
func (l *Local) Warm(ctx context.Context, workers []backend.Worker, progress func(done, total int)) (int, error) {
	total := 0
	keep := make(map[string]bool)
	for _, w := range workers {
		total += len(w.Images)
		for _, img := range w.Images {
			keep[img] = true
		}
	}

	usable, done := 0, 0
	for _, w := range workers {
		for _, photoURL := range w.Images {
			if err := ctx.Err(); err != nil {
				return usable, err
			}
			if _, err := l.descriptor(ctx, photoURL); err == nil {
				usable++
			} else if !errors.Is(err, ErrNoFace) {
				l.log.WithError(err).WithField("photo", photoURL).Warn("failed to compute descriptor")
			}
			done++
			if progress != nil {
				progress(done, total)
			}
		}
	}

	if removed := l.cache.Retain(keep); removed > 0 {
		l.log.WithField("removed", removed).Info("pruned descriptors of deleted photos")
	}
	return usable, nil
}
