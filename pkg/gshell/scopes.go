package gshell

import (
	"sort"

	"github.com/pkg/errors"
	admin "google.golang.org/api/admin/directory/v1"
	reports "google.golang.org/api/admin/reports/v1"
	drive "google.golang.org/api/drive/v3"
	gmail "google.golang.org/api/gmail/v1"
)

// API names used as token keys.
const (
	APIGmail     = "gmail"
	APIDrive     = "drive"
	APIDirectory = "directory"
	APIReports   = "reports"
)

// MyCustomer addresses the customer account of the authenticated admin.
const MyCustomer = "my_customer"

var apiScopes = map[string][]string{
	APIGmail: {
		gmail.MailGoogleComScope,
		gmail.GmailSettingsBasicScope,
		gmail.GmailSettingsSharingScope,
	},
	APIDrive: {
		drive.DriveScope,
	},
	APIDirectory: {
		admin.AdminDirectoryUserScope,
		admin.AdminDirectoryGroupScope,
		admin.AdminDirectoryGroupMemberScope,
		admin.AdminDirectoryOrgunitScope,
	},
	APIReports: {
		reports.AdminReportsAuditReadonlyScope,
		reports.AdminReportsUsageReadonlyScope,
	},
}

// AllAPIs returns every supported API name, sorted.
func AllAPIs() []string {
	var ret []string
	for api := range apiScopes {
		ret = append(ret, api)
	}
	sort.Strings(ret)
	return ret
}

// Scopes returns the OAuth scopes requested for api.
func Scopes(api string) ([]string, error) {
	s, ok := apiScopes[api]
	if !ok {
		return nil, errors.Errorf("unknown api %q (known: %v)", api, AllAPIs())
	}
	return append([]string(nil), s...), nil
}

// ScopesFor returns the union of scopes for apis, without duplicates.
func ScopesFor(apis []string) ([]string, error) {
	seen := map[string]bool{}
	var ret []string
	for _, api := range apis {
		s, err := Scopes(api)
		if err != nil {
			return nil, err
		}
		for _, scope := range s {
			if !seen[scope] {
				seen[scope] = true
				ret = append(ret, scope)
			}
		}
	}
	return ret, nil
}
