package appconfig

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/iamconsole/backend-go/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	return &config.Config{
		Deployment: config.DeploymentConfig{
			ConsoleApp:             config.ConsoleAppConfig{Path: "/console"},
			AppBase:                "myaccount",
			AppBaseWithTenant:      "/t/wso2.com/myaccount",
			Routes:                 config.RoutesConfig{Home: "/overview", Login: "/login", Logout: "/logout"},
			ClientOrigin:           "https://console.example.com",
			ClientOriginWithTenant: "https://console.example.com/t/wso2.com",
			ClientID:               "MY_ACCOUNT",
			LoginCallbackURL:       "/myaccount/login",
			ProductVersion:         "5.11.0",
			ServerOrigin:           "https://is.example.com",
			ServerOriginWithTenant: "https://is.example.com/t/wso2.com",
			SuperTenant:            "carbon.super",
			Tenant:                 "wso2.com",
			TenantPath:             "/t/wso2.com",
		},
		UI: config.UIConfig{
			AppName:                      "My Account",
			AppCopyright:                 "${copyright} ${year} WSO2 Inc.",
			ProductName:                  "WSO2 Identity Server",
			DisableMFAForSuperTenantUser: true,
			ShowAppSwitchButton:          true,
		},
		I18n: config.I18nConfig{
			FallbackLanguage:      "en-US",
			DefaultNamespace:      "common",
			Namespaces:            []string{"common", "myAccount"},
			LangAutoDetectEnabled: true,
			NamespaceDirectories:  map[string]string{"common": "portals"},
		},
	}
}

func TestAccessor_Deployment(t *testing.T) {
	d := New(testConfig()).Deployment()

	assert.Equal(t, "/t/wso2.com/myaccount", d.AppBaseName)
	assert.Equal(t, "myaccount", d.AppBaseNameWithoutTenant)
	assert.Equal(t, "/overview", d.AppHomePath)
	assert.Equal(t, "/login", d.AppLoginPath)
	assert.Equal(t, "/logout", d.AppLogoutPath)
	assert.Equal(t, "https://console.example.com/t/wso2.com", d.ClientHost)
	assert.Equal(t, "https://is.example.com/t/wso2.com", d.ServerHost)
	assert.Equal(t, "https://is.example.com", d.ServerOrigin)
	assert.Equal(t, "/console", d.ConsoleApp.Path)
	assert.Equal(t, "wso2.com", d.Tenant)
}

func TestAccessor_ServiceEndpointsTemplatedFromServerHost(t *testing.T) {
	a := New(testConfig())
	endpoints := a.ServiceEndpoints()

	assert.Equal(t, "https://is.example.com/t/wso2.com/api/users/v1/me/applications", endpoints.Applications)
	assert.Equal(t, "https://is.example.com/t/wso2.com/oauth2/token", endpoints.Token)
	assert.Equal(t, endpoints.Token, endpoints.Issuer)
	assert.Equal(t, "https://is.example.com/t/wso2.com/scim2/Me?attributes="+ReadOnlyUserClaimURI, endpoints.IsReadOnlyUser)
	assert.Equal(t, "https://is.example.com/t/wso2.com/api/identity/consent-mgt/v1.0/consents/receipts",
		endpoints.ConsentManagement.Consent.ConsentReceipt)
	assert.Equal(t, "https://is.example.com/t/wso2.com/api/server/v1/userstores/test-connection", endpoints.TestConnection)

	// every endpoint, nested ones included, starts with the server host
	var walk func(v reflect.Value)
	count := 0
	walk = func(v reflect.Value) {
		for i := 0; i < v.NumField(); i++ {
			field := v.Field(i)
			if field.Kind() == reflect.Struct {
				walk(field)
				continue
			}
			count++
			assert.True(t, strings.HasPrefix(field.String(), a.ServerHost()), v.Type().Field(i).Name)
		}
	}
	walk(reflect.ValueOf(endpoints))
	assert.Equal(t, 37, count)
}

func TestAccessor_UICopyright(t *testing.T) {
	now := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)

	ui := New(testConfig()).UI(now)

	assert.Equal(t, "© 2026 WSO2 Inc.", ui.CopyrightText)
	assert.Equal(t, "My Account", ui.AppName)
	assert.True(t, ui.DisableMFAForSuperTenantUser)
	assert.True(t, ui.ShowAppSwitchButton)
}

func TestCopyrightText(t *testing.T) {
	now := time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		template string
		expected string
	}{
		{"both placeholders", "${copyright} ${year} Acme", "© 2024 Acme"},
		{"no placeholders", "Acme Corp", "Acme Corp"},
		{"only first occurrence", "${year} ${year}", "2024 ${year}"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, CopyrightText(tt.template, now))
		})
	}
}

func TestAccessor_I18n(t *testing.T) {
	i := New(testConfig()).I18n()

	assert.Equal(t, "/resources/i18n", i.ResourcePath)
	assert.Equal(t, "en-US", i.InitOptions.FallbackLanguage)
	assert.Equal(t, []string{"common", "myAccount"}, i.InitOptions.Namespaces)
	assert.True(t, i.LangAutoDetectEnabled)
	assert.False(t, i.XHRBackendPluginEnabled)
}

func TestAccessor_JSONShape(t *testing.T) {
	body, err := json.Marshal(New(testConfig()).Deployment())
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &decoded))
	assert.Equal(t, "https://is.example.com/t/wso2.com", decoded["serverHost"])
	assert.Equal(t, "/myaccount/login", decoded["loginCallbackUrl"])
}
