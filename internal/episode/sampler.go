package episode

import (
	"fmt"
	"math/rand"

	"protonet/internal/config"
	"protonet/internal/pool"
)

// Params are the episodic task dimensions: NWay classes with KShot support
// examples and KQuery query examples each.
type Params struct {
	NWay   int
	KShot  int
	KQuery int
}

// Validate reports parameter violations as *config.ConfigError, the fatal
// pre-run class.
func (p Params) Validate() error {
	if p.NWay < 2 {
		return config.Errorf("n_way must be >= 2, got %d", p.NWay)
	}
	if p.KShot < 1 {
		return config.Errorf("k_shot must be >= 1, got %d", p.KShot)
	}
	if p.KQuery < 1 {
		return config.Errorf("k_query must be >= 1, got %d", p.KQuery)
	}
	return nil
}

// QueryExample pairs a raw input with its episode-local class id.
type QueryExample struct {
	Input []float64
	Class int
}

// Task is one self-contained classification problem. Local class ids are an
// episode-scoped relabeling: Labels[c] is the pool label that class c was
// drawn from, but c carries no meaning outside this task.
type Task struct {
	NWay   int
	KShot  int
	KQuery int

	// Support holds KShot raw inputs per local class, class-major.
	Support [][][]float64
	// Query holds NWay*KQuery labeled raw inputs.
	Query []QueryExample
	// Labels maps local class id to the originating pool label.
	Labels []string
}

// InsufficientDataError reports a sampled label that cannot cover one
// episode's support and query demand. It is fatal: re-sampling the same pool
// would reproduce it.
type InsufficientDataError struct {
	Label string
	Need  int
	Have  int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("label %s has %d examples, episode needs %d", e.Label, e.Have, e.Need)
}

// Sample draws one task from the pool. The order of the label draw defines
// the local class ids; per label, KShot+KQuery distinct examples are drawn
// without replacement, the first KShot going to support. Sampling is
// deterministic given the rng state, so re-seeding the same stream
// reproduces the same task sequence.
func Sample(p *pool.Pool, params Params, rng *rand.Rand) (Task, error) {
	if p == nil {
		return Task{}, fmt.Errorf("pool is required")
	}
	if rng == nil {
		return Task{}, fmt.Errorf("rng is required")
	}
	if err := params.Validate(); err != nil {
		return Task{}, err
	}

	labels := p.Labels()
	if len(labels) < params.NWay {
		return Task{}, config.Errorf("pool has %d labels, n_way is %d", len(labels), params.NWay)
	}

	chosen := make([]string, 0, params.NWay)
	for _, i := range rng.Perm(len(labels))[:params.NWay] {
		chosen = append(chosen, labels[i])
	}

	need := params.KShot + params.KQuery
	task := Task{
		NWay:    params.NWay,
		KShot:   params.KShot,
		KQuery:  params.KQuery,
		Support: make([][][]float64, params.NWay),
		Query:   make([]QueryExample, 0, params.NWay*params.KQuery),
		Labels:  chosen,
	}

	for class, label := range chosen {
		indices := p.IndicesByLabel(label)
		if len(indices) < need {
			return Task{}, &InsufficientDataError{Label: label, Need: need, Have: len(indices)}
		}

		picked := rng.Perm(len(indices))[:need]
		support := make([][]float64, 0, params.KShot)
		for _, j := range picked[:params.KShot] {
			support = append(support, p.Example(indices[j]).Input)
		}
		task.Support[class] = support
		for _, j := range picked[params.KShot:] {
			task.Query = append(task.Query, QueryExample{
				Input: p.Example(indices[j]).Input,
				Class: class,
			})
		}
	}

	return task, nil
}

// Stream produces a lazy sequence of tasks from one seeded RNG. Separate
// streams with separate seeds are independent; the same seed replays the
// identical sequence.
type Stream struct {
	pool   *pool.Pool
	params Params
	rng    *rand.Rand
}

func NewStream(p *pool.Pool, params Params, seed int64) (*Stream, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if len(p.Labels()) < params.NWay {
		return nil, config.Errorf("pool has %d labels, n_way is %d", len(p.Labels()), params.NWay)
	}
	return &Stream{
		pool:   p,
		params: params,
		rng:    rand.New(rand.NewSource(seed)),
	}, nil
}

func (s *Stream) Next() (Task, error) {
	return Sample(s.pool, s.params, s.rng)
}
