// Copyright (c) Seismix
// SPDX-License-Identifier: Apache-2.0

package errors_test

import (
	"fmt"
	"testing"

	"github.com/seismix/seismix/pkg/errors"
	"github.com/stretchr/testify/assert"
)

var (
	err0 = errors.New("0")
	err1 = errors.New("1")
	err2 = errors.New("2")
)

func TestWrap(t *testing.T) {
	cases := []struct {
		desc    string
		wrapper error
		err     error
		msg     string
	}{
		{"wrap error with error", err1, err0, "1 : 0"},
		{"wrap nil with error", nil, err0, ""},
		{"wrap error with nil", err1, nil, "1"},
		{"double wrap", err2, errors.Wrap(err1, err0), "2 : 1 : 0"},
	}

	for _, tc := range cases {
		wrapped := errors.Wrap(tc.wrapper, tc.err)
		if tc.wrapper == nil {
			assert.Nil(t, wrapped, fmt.Sprintf("%s: expected nil got %v", tc.desc, wrapped))
			continue
		}
		assert.Equal(t, tc.msg, wrapped.Error(), fmt.Sprintf("%s: expected %q got %q", tc.desc, tc.msg, wrapped.Error()))
	}
}

func TestContains(t *testing.T) {
	cases := []struct {
		desc      string
		container error
		contained error
		contains  bool
	}{
		{"nil contains nil", nil, nil, true},
		{"nil contains error", nil, err0, false},
		{"wrapped contains wrapper", errors.Wrap(err1, err0), err1, true},
		{"wrapped contains wrapped", errors.Wrap(err1, err0), err0, true},
		{"wrapped does not contain other", errors.Wrap(err1, err0), err2, false},
		{"deep wrap contains root", errors.Wrap(err2, errors.Wrap(err1, err0)), err0, true},
	}

	for _, tc := range cases {
		contains := errors.Contains(tc.container, tc.contained)
		assert.Equal(t, tc.contains, contains, fmt.Sprintf("%s: expected %t got %t", tc.desc, tc.contains, contains))
	}
}
