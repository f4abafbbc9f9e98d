package aws

import (
	"context"
	"testing"

	awsv2 "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/organizations"
	orgtypes "github.com/aws/aws-sdk-go-v2/service/organizations/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOrgs struct {
	// accounts maps parent id to the accounts directly under it.
	accounts map[string][]orgtypes.Account
	// ous maps parent id to the child OU ids under it.
	ous map[string][]string
}

func (f *fakeOrgs) ListAccountsForParent(ctx context.Context, params *organizations.ListAccountsForParentInput, optFns ...func(*organizations.Options)) (*organizations.ListAccountsForParentOutput, error) {
	return &organizations.ListAccountsForParentOutput{
		Accounts: f.accounts[awsv2.ToString(params.ParentId)],
	}, nil
}

func (f *fakeOrgs) ListOrganizationalUnitsForParent(ctx context.Context, params *organizations.ListOrganizationalUnitsForParentInput, optFns ...func(*organizations.Options)) (*organizations.ListOrganizationalUnitsForParentOutput, error) {
	var units []orgtypes.OrganizationalUnit
	for _, id := range f.ous[awsv2.ToString(params.ParentId)] {
		units = append(units, orgtypes.OrganizationalUnit{Id: awsv2.String(id)})
	}
	return &organizations.ListOrganizationalUnitsForParentOutput{OrganizationalUnits: units}, nil
}

func orgAccount(id, name string) orgtypes.Account {
	return orgtypes.Account{
		Id:     awsv2.String(id),
		Name:   awsv2.String(name),
		Status: orgtypes.AccountStatusActive,
	}
}

func TestDiscoverAccounts_WalksNestedOUs(t *testing.T) {
	client := &fakeOrgs{
		accounts: map[string][]orgtypes.Account{
			"ou-root": {orgAccount("111111111111", "root-acct")},
			"ou-a":    {orgAccount("222222222222", "a-acct")},
			"ou-a-1":  {orgAccount("333333333333", "nested-acct")},
		},
		ous: map[string][]string{
			"ou-root": {"ou-a", "ou-b"},
			"ou-a":    {"ou-a-1"},
		},
	}

	accounts, err := DiscoverAccounts(context.Background(), client, "ou-root")
	require.NoError(t, err)

	var ids []string
	for _, a := range accounts {
		ids = append(ids, a.ID)
	}
	assert.Equal(t, []string{"111111111111", "222222222222", "333333333333"}, ids)
}

func TestDiscoverAccounts_EmptyTree(t *testing.T) {
	accounts, err := DiscoverAccounts(context.Background(), &fakeOrgs{}, "ou-empty")
	require.NoError(t, err)
	assert.Empty(t, accounts)
}

func TestTasks_SkipsInactiveAccounts(t *testing.T) {
	accounts := []Account{
		{ID: "111111111111", Status: orgtypes.AccountStatusActive},
		{ID: "222222222222", Status: orgtypes.AccountStatusSuspended},
		{ID: "333333333333", Status: orgtypes.AccountStatusActive},
	}

	tasks := Tasks(accounts, "InventoryRole", "us-east-1")
	require.Len(t, tasks, 2)
	assert.Equal(t, "111111111111", tasks[0].AccountID)
	assert.Equal(t, "InventoryRole", tasks[0].RoleName)
	assert.Equal(t, "us-east-1", tasks[0].Region)
	assert.Equal(t, "333333333333", tasks[1].AccountID)
}
