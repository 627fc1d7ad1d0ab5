// Package mocks 提供 visionflow 测试使用的模拟实现。
//
// MockGenerator 是 llm.Generator 的测试模拟实现，支持固定响应、错误注入、
// 延迟与调用记录。
package mocks

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/BaSui01/visionflow/llm"
)

// MockGenerator 是 llm.Generator 的模拟实现
type MockGenerator struct {
	mu sync.RWMutex

	response  string
	err       error
	delay     time.Duration
	failAfter int
	fn        func(ctx context.Context, req *llm.GenerateRequest) (*llm.GenerateResponse, error)

	calls []llm.GenerateRequest
}

// NewMockGenerator 创建新的 MockGenerator
func NewMockGenerator() *MockGenerator {
	return &MockGenerator{response: "Mock response"}
}

// WithResponse 设置固定响应
func (m *MockGenerator) WithResponse(response string) *MockGenerator {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.response = response
	return m
}

// WithError 设置错误
func (m *MockGenerator) WithError(err error) *MockGenerator {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// WithDelay 设置模拟延迟
func (m *MockGenerator) WithDelay(d time.Duration) *MockGenerator {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
	return m
}

// WithFailAfter 在第 N 次调用后失败
func (m *MockGenerator) WithFailAfter(n int) *MockGenerator {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failAfter = n
	return m
}

// WithGenerateFunc 设置自定义生成函数
func (m *MockGenerator) WithGenerateFunc(fn func(ctx context.Context, req *llm.GenerateRequest) (*llm.GenerateResponse, error)) *MockGenerator {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fn = fn
	return m
}

// Name 返回名称
func (m *MockGenerator) Name() string { return "mock" }

// Generate 生成响应并记录请求
func (m *MockGenerator) Generate(ctx context.Context, req *llm.GenerateRequest) (*llm.GenerateResponse, error) {
	m.mu.Lock()
	cp := *req
	cp.Messages = append(cp.Messages[:0:0], req.Messages...)
	m.calls = append(m.calls, cp)
	n := len(m.calls)
	delay, err, fn, response, failAfter := m.delay, m.err, m.fn, m.response, m.failAfter
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if failAfter > 0 && n > failAfter {
		return nil, errors.New("mock generator: configured to fail after N calls")
	}
	if err != nil {
		return nil, err
	}
	if fn != nil {
		return fn(ctx, req)
	}
	return &llm.GenerateResponse{
		ID:           "mock-response-id",
		Provider:     "mock",
		Model:        "mock-model",
		Text:         response,
		FinishReason: "stop",
	}, nil
}

// Calls 返回所有请求副本
func (m *MockGenerator) Calls() []llm.GenerateRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]llm.GenerateRequest(nil), m.calls...)
}

// CallCount 返回调用次数
func (m *MockGenerator) CallCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.calls)
}

// TurnInstructions 返回每次调用的单轮指令
func (m *MockGenerator) TurnInstructions() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.calls))
	for i, c := range m.calls {
		out[i] = c.TurnInstruction
	}
	return out
}
