// Package shuffle 随机播放顺序：生成队列下标的随机排列并在其上前后移动
package shuffle

import (
	"math/rand"
	"sync"
	"time"
)

// Direction 游标移动方向
type Direction int

const (
	Forward  Direction = 1
	Backward Direction = -1
)

var (
	defaultRand   = rand.New(rand.NewSource(time.Now().UnixNano()))
	defaultRandMu sync.Mutex
)

// GeneratePermutation 对 [0, length) 做 Fisher–Yates 洗牌
//
// pinned 在合法范围内时被移到第一位，切换到随机模式时当前歌曲不会被打断。
// r 为 nil 时使用包内的随机源。
func GeneratePermutation(length, pinned int, r *rand.Rand) []int {
	if length <= 0 {
		return []int{}
	}

	indices := make([]int, length)
	for i := range indices {
		indices[i] = i
	}

	if r == nil {
		defaultRandMu.Lock()
		defer defaultRandMu.Unlock()
		r = defaultRand
	}
	for i := length - 1; i > 0; i-- {
		j := r.Intn(i + 1)
		indices[i], indices[j] = indices[j], indices[i]
	}

	if pinned >= 0 && pinned < length {
		for pos, v := range indices {
			if v == pinned {
				copy(indices[1:pos+1], indices[:pos])
				indices[0] = pinned
				break
			}
		}
	}
	return indices
}

// Advance 按方向移动游标，两端循环；空排列返回 -1
func Advance(permutation []int, cursor int, dir Direction) int {
	n := len(permutation)
	if n == 0 {
		return -1
	}
	next := (cursor + int(dir)) % n
	if next < 0 {
		next += n
	}
	return next
}

// State 一个随机排列及其游标
type State struct {
	Order  []int
	Cursor int
}

// New 生成新的随机状态，游标指向第一位（即 pinned）
func New(length, pinned int, r *rand.Rand) *State {
	order := GeneratePermutation(length, pinned, r)
	cursor := 0
	if len(order) == 0 {
		cursor = -1
	}
	return &State{Order: order, Cursor: cursor}
}

// Len 排列长度
func (s *State) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Order)
}

// Peek 返回按方向移动一步后的队列下标，不改变游标
func (s *State) Peek(dir Direction) int {
	if s.Len() == 0 {
		return -1
	}
	return s.Order[Advance(s.Order, s.Cursor, dir)]
}

// Step 移动游标并返回新的队列下标
func (s *State) Step(dir Direction) int {
	if s.Len() == 0 {
		return -1
	}
	s.Cursor = Advance(s.Order, s.Cursor, dir)
	return s.Order[s.Cursor]
}

// Sync 把游标对齐到给定队列下标，找不到时返回 false
func (s *State) Sync(index int) bool {
	if s == nil {
		return false
	}
	for pos, v := range s.Order {
		if v == index {
			s.Cursor = pos
			return true
		}
	}
	return false
}
