package aws

import (
	"context"
	"fmt"

	awsv2 "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/organizations"
	orgtypes "github.com/aws/aws-sdk-go-v2/service/organizations/types"

	"github.com/phlukman/inventory-tag/inventory"
)

// OrganizationsClient is the subset of the Organizations API used for
// account discovery.
type OrganizationsClient interface {
	ListAccountsForParent(ctx context.Context, params *organizations.ListAccountsForParentInput, optFns ...func(*organizations.Options)) (*organizations.ListAccountsForParentOutput, error)
	ListOrganizationalUnitsForParent(ctx context.Context, params *organizations.ListOrganizationalUnitsForParentInput, optFns ...func(*organizations.Options)) (*organizations.ListOrganizationalUnitsForParentOutput, error)
}

// Account is one member account discovered under an organizational
// unit.
type Account struct {
	ID     string
	Name   string
	Status orgtypes.AccountStatus
}

// DiscoverAccounts walks the organizational unit tree rooted at
// parentID and returns every account under it, depth first. Both
// listings are fully paginated.
func DiscoverAccounts(ctx context.Context, client OrganizationsClient, parentID string) ([]Account, error) {
	accounts, err := listDirectAccounts(ctx, client, parentID)
	if err != nil {
		return nil, err
	}

	ous, err := listChildOUs(ctx, client, parentID)
	if err != nil {
		return nil, err
	}
	for _, ou := range ous {
		children, err := DiscoverAccounts(ctx, client, ou)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, children...)
	}
	return accounts, nil
}

func listDirectAccounts(ctx context.Context, client OrganizationsClient, parentID string) ([]Account, error) {
	var accounts []Account
	var token *string
	for {
		out, err := client.ListAccountsForParent(ctx, &organizations.ListAccountsForParentInput{
			ParentId:  awsv2.String(parentID),
			NextToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("list accounts under %s: %w", parentID, err)
		}
		for _, a := range out.Accounts {
			accounts = append(accounts, Account{
				ID:     awsv2.ToString(a.Id),
				Name:   awsv2.ToString(a.Name),
				Status: a.Status,
			})
		}
		if out.NextToken == nil {
			return accounts, nil
		}
		token = out.NextToken
	}
}

func listChildOUs(ctx context.Context, client OrganizationsClient, parentID string) ([]string, error) {
	var ous []string
	var token *string
	for {
		out, err := client.ListOrganizationalUnitsForParent(ctx, &organizations.ListOrganizationalUnitsForParentInput{
			ParentId:  awsv2.String(parentID),
			NextToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("list OUs under %s: %w", parentID, err)
		}
		for _, ou := range out.OrganizationalUnits {
			ous = append(ous, awsv2.ToString(ou.Id))
		}
		if out.NextToken == nil {
			return ous, nil
		}
		token = out.NextToken
	}
}

// Tasks converts discovered accounts into collector tasks, skipping
// accounts that are not active.
func Tasks(accounts []Account, roleName, region string) []inventory.AccountTask {
	tasks := make([]inventory.AccountTask, 0, len(accounts))
	for _, a := range accounts {
		if a.Status != orgtypes.AccountStatusActive {
			continue
		}
		tasks = append(tasks, inventory.AccountTask{
			AccountID: a.ID,
			RoleName:  roleName,
			Region:    region,
		})
	}
	return tasks
}
