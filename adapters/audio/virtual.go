package audio

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/studylive/domain/repositories"
)

const virtualTick = 10 * time.Millisecond

// VirtualOutput is an output device that renders against the wall clock
// and discards the result. It stands in for a speaker on machines without
// an audio backend.
type VirtualOutput struct {
	mixer  *mixer
	done   chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
	logger *zap.Logger
}

var _ repositories.OutputDevice = (*VirtualOutput)(nil)

// NewVirtualOutput starts a virtual output at sampleRate
func NewVirtualOutput(sampleRate int, logger *zap.Logger) *VirtualOutput {
	o := &VirtualOutput{
		mixer:  newMixer(sampleRate),
		done:   make(chan struct{}),
		logger: logger,
	}

	o.wg.Add(1)
	go o.run()

	logger.Info("Virtual audio output started", zap.Int("sampleRate", sampleRate))
	return o
}

func (o *VirtualOutput) run() {
	defer o.wg.Done()

	ticker := time.NewTicker(virtualTick)
	defer ticker.Stop()

	started := time.Now()
	var rendered int64
	var buf []float32

	for {
		select {
		case <-o.done:
			return
		case <-ticker.C:
			due := o.mixer.toSamples(time.Since(started)) - rendered
			if due <= 0 {
				continue
			}
			if int64(cap(buf)) < due {
				buf = make([]float32, due)
			}
			o.mixer.render(buf[:due])
			rendered += due
		}
	}
}

func (o *VirtualOutput) Now() time.Duration {
	return o.mixer.now()
}

func (o *VirtualOutput) Schedule(samples []float32, at time.Duration, ended func(repositories.SegmentHandle)) (repositories.SegmentHandle, error) {
	return o.mixer.schedule(samples, at, ended)
}

func (o *VirtualOutput) Stop(handle repositories.SegmentHandle) {
	o.mixer.stop(handle)
}

func (o *VirtualOutput) Close() error {
	o.once.Do(func() {
		close(o.done)
		o.wg.Wait()
		o.mixer.close()
		o.logger.Info("Virtual audio output closed")
	})
	return nil
}
