package bwm

// coordinator.go implements Coordinator, the process-wide authority
// that registers tenants (as parsed from the tenant configuration file
// by config.go), hosts and flows, and computes the new global target
// fair share at each usage report. Grounded on the BwmCoordinator class in
// src/bandwidth-manager/model/bwm-coordinator.{h,cc}.

import (
	"fmt"
)

// Coordinator owns the tenant registry and the ordered host list, and
// holds the two controller parameters used throughout: alpha
// (progress factor) and minFS (global lower bound).
type Coordinator struct {
	Alpha float64
	MinFS float64

	tenants map[uint32]*Tenant
	hosts   []*LocalAgent
	nextID  uint32
}

// NewCoordinator constructs a Coordinator with the given controller
// parameters. alpha must be in [0,1); minFS is the global lower
// bound on the disseminated target fair share.
func NewCoordinator(alpha, minFS float64) *Coordinator {
	return &Coordinator{
		Alpha:   alpha,
		MinFS:   minFS,
		tenants: make(map[uint32]*Tenant),
	}
}

// Tenant looks up a tenant by id.
func (c *Coordinator) Tenant(tenantID uint32) (*Tenant, bool) {
	t, ok := c.tenants[tenantID]
	return t, ok
}

// Tenants returns every registered tenant, in no particular order.
func (c *Coordinator) Tenants() []*Tenant {
	out := make([]*Tenant, 0, len(c.tenants))
	for _, t := range c.tenants {
		out = append(out, t)
	}
	return out
}

// RegisterTenant installs a tenant into the registry, as read from the
// tenant configuration file. Re-registering an existing tenant id
// overwrites the prior entry, matching the "last block wins" behavior
// a streaming parser naturally produces.
func (c *Coordinator) RegisterTenant(t *Tenant) {
	c.tenants[t.TenantID] = t
}

// RegisterHost appends agent to the host list and assigns it the next
// sequential hostId.
func (c *Coordinator) RegisterHost(agent *LocalAgent) uint32 {
	id := c.nextID
	c.nextID++
	agent.HostID = id
	c.hosts = append(c.hosts, agent)
	return id
}

// Hosts returns every registered agent, in registration order.
func (c *Coordinator) Hosts() []*LocalAgent { return c.hosts }

// RegisterFlow creates a UnitFlow, auto-configures its BF from the
// "srcHost dstHost deviceRateLimit" triple using the tenant's
// host-weight table (defaulting to 1.0 for unregistered hosts),
// attaches the flow to the tenant, and re-runs tenant BF
// transformation. Unknown tenants log and return (nil, false) rather
// than creating one implicitly.
func (c *Coordinator) RegisterFlow(tenantID, flowID, traceID uint32, srcHost, dstHost uint32, deviceRateLimit float64) (*UnitFlow, bool) {
	t, ok := c.tenants[tenantID]
	if !ok {
		fmt.Printf("bwm: registerFlow for unknown tenant %d, dropping\n", tenantID)
		return nil, false
	}

	uf := NewUnitFlow(tenantID, flowID, traceID)
	wSrc := t.HostWeight(srcHost)
	wDst := t.HostWeight(dstHost)

	bf := NewBandwidthFunction()
	denom := wSrc + wDst
	if denom <= 0 {
		denom = 1
	}
	bf.AddVertex(deviceRateLimit/denom, deviceRateLimit)
	uf.SetConfiguredBF(bf)

	t.AddFlow(uf)
	return uf, true
}

// UpdateUsage installs each reported usage into its UnitFlow, computes
// the new target
// status as max(minFS, (1+alpha)*mean(tenant actual fair share)), and
// delivers it to agent via the fire-and-forget SetNewTargetStatus.
func (c *Coordinator) UpdateUsage(agent *LocalAgent, usages []FlowUsage) {
	for _, u := range usages {
		t, ok := c.tenants[u.TenantID]
		if !ok {
			fmt.Printf("bwm: usage report for unknown tenant %d, dropping\n", u.TenantID)
			continue
		}
		uf, ok := t.Flow(u.FlowID)
		if !ok {
			fmt.Printf("bwm: usage report for unknown flow %d/%d, dropping\n", u.TenantID, u.FlowID)
			continue
		}
		uf.SetUsage(u.UsageBPS)
	}

	newFS := c.estimateTargetStatus()
	agent.SetNewTargetStatus(newFS)
}

// estimateTargetStatus computes max(minFS, (1+alpha)*mean(actual fair
// share across tenants)), falling back to minFS when there are no
// tenants at all.
func (c *Coordinator) estimateTargetStatus() float64 {
	if len(c.tenants) == 0 {
		return c.MinFS
	}

	var sum float64
	for _, t := range c.tenants {
		sum += t.ActualFairShare()
	}
	mean := sum / float64(len(c.tenants))

	target := (1 + c.Alpha) * mean
	if target < c.MinFS {
		target = c.MinFS
	}
	return target
}

// FlowUsage is one flow's measured usage rate, as forwarded by a
// LocalAgent's Reporter.
type FlowUsage struct {
	TenantID uint32
	FlowID   uint32
	UsageBPS float64
}
