package crawlers

import (
	"math/rand"
	"sync"
	"time"

	"github.com/RecoveryAshes/listwalk/internal/models"
)

// Jitter 滚动节奏策略,测试中可替换为确定值
type Jitter interface {
	BurstSize() int            // 一轮小幅滚动的次数
	StepFraction() float64     // 单次滚动占视口高度的比例
	ShortDelay() time.Duration // 小幅滚动之间的间隔
	ReadPause() time.Duration  // 一轮结束后的停顿
}

// RandomJitter 在配置范围内均匀取值
type RandomJitter struct {
	cfg models.JitterConfig
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewRandomJitter 创建随机节奏,seed为0时使用当前时间
func NewRandomJitter(cfg models.JitterConfig, seed int64) *RandomJitter {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &RandomJitter{cfg: cfg, rnd: rand.New(rand.NewSource(seed))}
}

func (j *RandomJitter) intn(n int) int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.rnd.Intn(n)
}

func (j *RandomJitter) float() float64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.rnd.Float64()
}

func (j *RandomJitter) between(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(j.float()*float64(hi-lo))
}

// BurstSize 实现Jitter
func (j *RandomJitter) BurstSize() int {
	if j.cfg.BurstMax <= j.cfg.BurstMin {
		return j.cfg.BurstMin
	}
	return j.cfg.BurstMin + j.intn(j.cfg.BurstMax-j.cfg.BurstMin+1)
}

// StepFraction 实现Jitter
func (j *RandomJitter) StepFraction() float64 {
	return j.cfg.StepMin + j.float()*(j.cfg.StepMax-j.cfg.StepMin)
}

// ShortDelay 实现Jitter
func (j *RandomJitter) ShortDelay() time.Duration {
	return j.between(j.cfg.ShortDelayMin, j.cfg.ShortDelayMax)
}

// ReadPause 实现Jitter
func (j *RandomJitter) ReadPause() time.Duration {
	return j.between(j.cfg.ReadPauseMin, j.cfg.ReadPauseMax)
}

// FixedJitter 固定节奏
type FixedJitter struct {
	Burst int
	Step  float64
	Delay time.Duration
	Pause time.Duration
}

func (f FixedJitter) BurstSize() int            { return f.Burst }
func (f FixedJitter) StepFraction() float64     { return f.Step }
func (f FixedJitter) ShortDelay() time.Duration { return f.Delay }
func (f FixedJitter) ReadPause() time.Duration  { return f.Pause }
