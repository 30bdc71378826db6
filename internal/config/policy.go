package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Policy is the operator-authored part of the configuration: fee schedule,
// disbursement signers and minting grants.
type Policy struct {
	Fees struct {
		ProtocolBps      int64  `yaml:"protocol_bps"`
		ReferrerBps      int64  `yaml:"referrer_bps"`
		TreasuryIdentity string `yaml:"treasury_identity"`
	} `yaml:"fees"`

	Multisig struct {
		Threshold int      `yaml:"threshold"`
		Signers   []string `yaml:"signers"`
	} `yaml:"multisig"`

	Admins []string `yaml:"admins"`

	// Minters maps slot ID to the identities allowed to mint into it. The
	// slot ID "*" grants minting on every slot.
	Minters map[string][]string `yaml:"minters"`
}

// LoadPolicy reads and validates a policy file.
func LoadPolicy(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy: %w", err)
	}

	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse policy: %w", err)
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// LoadPolicyOrDefault loads the policy file, falling back to defaults when the
// file does not exist.
func LoadPolicyOrDefault(path string) (*Policy, error) {
	p, err := LoadPolicy(path)
	if err == nil {
		return p, nil
	}
	if os.IsNotExist(err) || os.IsNotExist(unwrapped(err)) {
		return DefaultPolicy(), nil
	}
	return nil, err
}

func unwrapped(err error) error {
	type wrapper interface{ Unwrap() error }
	if w, ok := err.(wrapper); ok {
		return w.Unwrap()
	}
	return err
}

// DefaultPolicy returns a single-operator development policy.
func DefaultPolicy() *Policy {
	p := &Policy{}
	p.Fees.ProtocolBps = 250
	p.Fees.ReferrerBps = 100
	p.Fees.TreasuryIdentity = "protocol"
	p.Multisig.Threshold = 1
	p.Multisig.Signers = []string{"admin"}
	p.Admins = []string{"admin"}
	p.Minters = map[string][]string{"*": {"admin"}}
	return p
}

func (p *Policy) validate() error {
	if p.Fees.ProtocolBps < 0 || p.Fees.ProtocolBps > 10_000 {
		return fmt.Errorf("fees.protocol_bps %d out of range", p.Fees.ProtocolBps)
	}
	if p.Fees.ReferrerBps < 0 || p.Fees.ReferrerBps > 10_000 {
		return fmt.Errorf("fees.referrer_bps %d out of range", p.Fees.ReferrerBps)
	}
	if p.Fees.TreasuryIdentity == "" {
		return fmt.Errorf("fees.treasury_identity is required")
	}
	if p.Multisig.Threshold < 1 {
		return fmt.Errorf("multisig.threshold must be at least 1")
	}
	if p.Multisig.Threshold > len(p.Multisig.Signers) {
		return fmt.Errorf("multisig.threshold %d exceeds %d signers",
			p.Multisig.Threshold, len(p.Multisig.Signers))
	}
	return nil
}
