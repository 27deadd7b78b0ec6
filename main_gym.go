//go:build gym

package main

// Registers Gym environments with envconfig
import _ "github.com/samuelfneumann/arpl/environment/gym"
