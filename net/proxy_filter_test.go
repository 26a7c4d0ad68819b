package net

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProxyFilterChain(t *testing.T) {
	tests := []struct {
		name          string
		filters       func(calls *[]string) ProxyFilterChain
		expectedCalls []string
		expectedError bool
	}{
		{
			name:          "empty chain calls handler directly",
			filters:       func(*[]string) ProxyFilterChain { return nil },
			expectedCalls: []string{"handler"},
		},
		{
			name: "filters run in order before handler",
			filters: func(calls *[]string) ProxyFilterChain {
				return ProxyFilterChain{
					func(d *Delivery, f ProxyFilterHandleFunc) error {
						*calls = append(*calls, "first")
						return f(d)
					},
					func(d *Delivery, f ProxyFilterHandleFunc) error {
						*calls = append(*calls, "second")
						return f(d)
					},
				}
			},
			expectedCalls: []string{"first", "second", "handler"},
		},
		{
			name: "error stops the chain",
			filters: func(calls *[]string) ProxyFilterChain {
				return ProxyFilterChain{
					func(d *Delivery, f ProxyFilterHandleFunc) error {
						*calls = append(*calls, "first")
						return errors.New("filter error")
					},
					func(d *Delivery, f ProxyFilterHandleFunc) error {
						*calls = append(*calls, "second")
						return f(d)
					},
				}
			},
			expectedCalls: []string{"first"},
			expectedError: true,
		},
		{
			name: "filter may drop without error",
			filters: func(*[]string) ProxyFilterChain {
				return ProxyFilterChain{NewCmdBlockFilter(7)}
			},
			expectedCalls: nil,
		},
		{
			name: "block filter passes other commands",
			filters: func(*[]string) ProxyFilterChain {
				return ProxyFilterChain{NewCmdBlockFilter(8, 9)}
			},
			expectedCalls: []string{"handler"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls []string
			err := tt.filters(&calls).Handle(&Delivery{Cmd: 7}, func(*Delivery) error {
				calls = append(calls, "handler")
				return nil
			})
			assert.Equal(t, tt.expectedError, err != nil)
			assert.Equal(t, tt.expectedCalls, calls)
		})
	}
}
