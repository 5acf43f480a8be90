package localnet

import (
	"github.com/yourorg/zkmint/pkg/ledger"
)

// Addresses of the contracts of a mint deployment.
type Addresses struct {
	Authorizations string
	Processor      string
	CW20           string
}

// Deployment is the set of contracts a mint pipeline runs against.
type Deployment struct {
	Authorization *Authorization
	Processor     *Processor
	CW20          *CW20
}

// DeployMint instantiates the three contracts at addrs, with the processor
// as the token minter, and adds the zk authorization under label.
func DeployMint(c *Chain, addrs Addresses, v ProofVerifier, l ledger.Ledger, label string, auth ZKAuthorization) *Deployment {
	d := &Deployment{
		Authorization: NewAuthorization(addrs.Processor, v, l),
		Processor:     NewProcessor(addrs.Authorizations),
		CW20:          NewCW20(addrs.Processor),
	}
	d.Authorization.Add(label, auth)

	c.Deploy(addrs.Authorizations, d.Authorization)
	c.Deploy(addrs.Processor, d.Processor)
	c.Deploy(addrs.CW20, d.CW20)
	return d
}
