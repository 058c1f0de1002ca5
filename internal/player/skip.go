package player

import "time"

// SkipGuard 限制自动跳过的次数，防止整张歌单不可用时无限跳歌
type SkipGuard struct {
	// MaxConsecutive 冷却窗口内连续跳过达到该次数即停止
	MaxConsecutive int
	// Cooldown 两次跳过间隔超过该时长时计数重置为 1
	Cooldown time.Duration
	// UnavailableRatio 不可用歌曲占比超过该值即停止
	UnavailableRatio float64
	// MaxProbes 单次自动跳过最多检查的歌曲数
	MaxProbes int
}

func DefaultSkipGuard() SkipGuard {
	return SkipGuard{
		MaxConsecutive:   5,
		Cooldown:         3 * time.Second,
		UnavailableRatio: 0.8,
		MaxProbes:        10,
	}
}

// skipState 队列替换时重置，不做持久化
type skipState struct {
	consecutive int
	last        time.Time
	unavailable map[string]struct{}
}

func newSkipState() skipState {
	return skipState{unavailable: make(map[string]struct{})}
}

func (s *skipState) markUnavailable(id string) {
	s.unavailable[id] = struct{}{}
}

// record 记录一次跳过并返回当前连续次数
func (s *skipState) record(now time.Time, cooldown time.Duration) int {
	if !s.last.IsZero() && now.Sub(s.last) <= cooldown {
		s.consecutive++
	} else {
		s.consecutive = 1
	}
	s.last = now
	return s.consecutive
}

func (s *skipState) tripped(queueLen int, g SkipGuard) bool {
	if g.MaxConsecutive > 0 && s.consecutive >= g.MaxConsecutive {
		return true
	}
	if queueLen == 0 {
		return false
	}
	return float64(len(s.unavailable))/float64(queueLen) > g.UnavailableRatio
}
