package aws

import (
	"context"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// FleetDefaultIdleMinutes reads the fleet-wide default idle window from the
// configured SSM parameter. The orchestrator treats any error here as
// non-fatal and substitutes its fallback.
func (c *Client) FleetDefaultIdleMinutes(ctx context.Context) (int, error) {
	out, err := c.ssm.GetParameter(ctx, &ssm.GetParameterInput{
		Name: aws.String(c.defaultIdleParam),
	})
	if err != nil {
		return 0, fmt.Errorf("get parameter %s: %w", c.defaultIdleParam, err)
	}

	minutes, err := strconv.Atoi(aws.ToString(out.Parameter.Value))
	if err != nil {
		return 0, fmt.Errorf("parameter %s is not an integer: %w", c.defaultIdleParam, err)
	}
	return minutes, nil
}
