package appconfig

import (
	"strconv"
	"strings"
	"time"

	"github.com/iamconsole/backend-go/internal/config"
)

// ReadOnlyUserClaimURI is the SCIM enterprise extension attribute that marks
// a user as read-only
const ReadOnlyUserClaimURI = "urn:ietf:params:scim:schemas:extension:enterprise:2.0:User:isReadOnlyUser"

// I18nResourcePath is where the consoles load their language bundles from
const I18nResourcePath = "/resources/i18n"

const copyrightSymbol = "©"

// DeploymentConfig is the deployment view handed to the consoles
type DeploymentConfig struct {
	ConsoleApp               config.ConsoleAppConfig `json:"consoleApp"`
	AppBaseName              string                  `json:"appBaseName"`
	AppBaseNameWithoutTenant string                  `json:"appBaseNameWithoutTenant"`
	AppHomePath              string                  `json:"appHomePath"`
	AppLoginPath             string                  `json:"appLoginPath"`
	AppLogoutPath            string                  `json:"appLogoutPath"`
	ClientHost               string                  `json:"clientHost"`
	ClientID                 string                  `json:"clientID"`
	ClientOrigin             string                  `json:"clientOrigin"`
	IdpConfigs               map[string]interface{}  `json:"idpConfigs,omitempty"`
	LoginCallbackURL         string                  `json:"loginCallbackUrl"`
	ProductVersion           string                  `json:"productVersion"`
	ServerHost               string                  `json:"serverHost"`
	ServerOrigin             string                  `json:"serverOrigin"`
	SuperTenant              string                  `json:"superTenant"`
	Tenant                   string                  `json:"tenant"`
	TenantPath               string                  `json:"tenantPath"`
}

// ConsentEndpoints are the consent receipt endpoints
type ConsentEndpoints struct {
	AddConsent      string `json:"addConsent"`
	ConsentReceipt  string `json:"consentReceipt"`
	ListAllConsents string `json:"listAllConsents"`
}

// PurposeEndpoints are the consent purpose endpoints
type PurposeEndpoints struct {
	GetPurpose string `json:"getPurpose"`
	List       string `json:"list"`
}

// ConsentManagementEndpoints groups the consent management API
type ConsentManagementEndpoints struct {
	Consent ConsentEndpoints `json:"consent"`
	Purpose PurposeEndpoints `json:"purpose"`
}

// ServiceEndpoints lists every identity server URL the consoles call
type ServiceEndpoints struct {
	Applications          string                     `json:"applications"`
	Associations          string                     `json:"associations"`
	Authorize             string                     `json:"authorize"`
	ChallengeAnswers      string                     `json:"challengeAnswers"`
	Challenges            string                     `json:"challenges"`
	FederatedAssociations string                     `json:"federatedAssociations"`
	FidoEnd               string                     `json:"fidoEnd"`
	FidoMetaData          string                     `json:"fidoMetaData"`
	FidoStart             string                     `json:"fidoStart"`
	FidoStartUsernameless string                     `json:"fidoStartUsernameless"`
	IsReadOnlyUser        string                     `json:"isReadOnlyUser"`
	Issuer                string                     `json:"issuer"`
	JWKS                  string                     `json:"jwks"`
	Logout                string                     `json:"logout"`
	Me                    string                     `json:"me"`
	Preference            string                     `json:"preference"`
	ProfileSchemas        string                     `json:"profileSchemas"`
	Revoke                string                     `json:"revoke"`
	Sessions              string                     `json:"sessions"`
	SMSOTPResend          string                     `json:"smsOtpResend"`
	SMSOTPValidate        string                     `json:"smsOtpValidate"`
	Token                 string                     `json:"token"`
	TOTP                  string                     `json:"totp"`
	TOTPSecret            string                     `json:"totpSecret"`
	TypingDNAMe           string                     `json:"typingDNAMe"`
	TypingDNAServer       string                     `json:"typingDNAServer"`
	User                  string                     `json:"user"`
	WellKnown             string                     `json:"wellKnown"`
	ConsentManagement     ConsentManagementEndpoints `json:"consentManagement"`
	HomeRealmIdentifiers  string                     `json:"homeRealmIdentifiers"`
	UserStores            string                     `json:"userStores"`
	UserStoreMetaTypes    string                     `json:"userStoreMetaTypes"`
	TestConnection        string                     `json:"testConnection"`
}

// UIConfig is the branding and feature view handed to the consoles
type UIConfig struct {
	Announcements                []map[string]interface{} `json:"announcements"`
	AppName                      string                   `json:"appName"`
	AppTitle                     string                   `json:"appTitle"`
	AuthenticatorApp             map[string]interface{}   `json:"authenticatorApp,omitempty"`
	CopyrightText                string                   `json:"copyrightText"`
	Features                     map[string]interface{}   `json:"features,omitempty"`
	I18nConfigs                  map[string]interface{}   `json:"i18nConfigs,omitempty"`
	IsCookieConsentBannerEnabled bool                     `json:"isCookieConsentBannerEnabled"`
	IsHeaderAvatarLabelAllowed   bool                     `json:"isHeaderAvatarLabelAllowed"`
	IsProfileUsernameReadonly    bool                     `json:"isProfileUsernameReadonly"`
	PrivacyPolicyConfigs         map[string]interface{}   `json:"privacyPolicyConfigs,omitempty"`
	ProductName                  string                   `json:"productName"`
	ProductVersionConfig         map[string]interface{}   `json:"productVersionConfig,omitempty"`
	Theme                        map[string]interface{}   `json:"theme,omitempty"`
	DisableMFAForSuperTenantUser bool                     `json:"disableMFAforSuperTenantUser"`
	ShowAppSwitchButton          bool                     `json:"showAppSwitchButton"`
}

// I18nInitOptions are handed to the i18n library on start-up
type I18nInitOptions struct {
	FallbackLanguage string   `json:"fallbackLng"`
	DefaultNamespace string   `json:"defaultNS"`
	Namespaces       []string `json:"ns"`
}

// I18nConfig is the i18n module view handed to the consoles
type I18nConfig struct {
	InitOptions             I18nInitOptions   `json:"initOptions"`
	LangAutoDetectEnabled   bool              `json:"langAutoDetectEnabled"`
	NamespaceDirectories    map[string]string `json:"namespaceDirectories"`
	OverrideOptions         bool              `json:"overrideOptions"`
	ResourcePath            string            `json:"resourcePath"`
	XHRBackendPluginEnabled bool              `json:"xhrBackendPluginEnabled"`
}

// Accessor projects the start-up configuration into the views the consoles
// consume. It never mutates the configuration.
type Accessor struct {
	cfg *config.Config
}

// New creates an accessor over a loaded configuration
func New(cfg *config.Config) *Accessor {
	return &Accessor{cfg: cfg}
}

// Deployment returns the deployment view
func (a *Accessor) Deployment() DeploymentConfig {
	d := a.cfg.Deployment
	return DeploymentConfig{
		ConsoleApp:               d.ConsoleApp,
		AppBaseName:              d.AppBaseWithTenant,
		AppBaseNameWithoutTenant: d.AppBase,
		AppHomePath:              d.Routes.Home,
		AppLoginPath:             d.Routes.Login,
		AppLogoutPath:            d.Routes.Logout,
		ClientHost:               d.ClientOriginWithTenant,
		ClientID:                 d.ClientID,
		ClientOrigin:             d.ClientOrigin,
		IdpConfigs:               d.IdpConfigs,
		LoginCallbackURL:         d.LoginCallbackURL,
		ProductVersion:           d.ProductVersion,
		ServerHost:               d.ServerOriginWithTenant,
		ServerOrigin:             d.ServerOrigin,
		SuperTenant:              d.SuperTenant,
		Tenant:                   d.Tenant,
		TenantPath:               d.TenantPath,
	}
}

// ServerHost is the tenant qualified identity server origin every endpoint
// is built from
func (a *Accessor) ServerHost() string {
	return a.cfg.Deployment.ServerOriginWithTenant
}

// ServiceEndpoints returns the identity server URLs templated from the
// server host
func (a *Accessor) ServiceEndpoints() ServiceEndpoints {
	host := a.ServerHost()
	url := func(path string) string { return host + path }

	return ServiceEndpoints{
		Applications:          url("/api/users/v1/me/applications"),
		Associations:          url("/api/users/v1/me/associations"),
		Authorize:             url("/oauth2/authorize"),
		ChallengeAnswers:      url("/api/users/v1/me/challenge-answers"),
		Challenges:            url("/api/users/v1/me/challenges"),
		FederatedAssociations: url("/api/users/v1/me/federated-associations"),
		FidoEnd:               url("/api/users/v2/me/webauthn/finish-registration"),
		FidoMetaData:          url("/api/users/v2/me/webauthn"),
		FidoStart:             url("/api/users/v2/me/webauthn/start-registration"),
		FidoStartUsernameless: url("/api/users/v2/me/webauthn/start-usernameless-registration"),
		IsReadOnlyUser:        url("/scim2/Me?attributes=" + ReadOnlyUserClaimURI),
		Issuer:                url("/oauth2/token"),
		JWKS:                  url("/oauth2/jwks"),
		Logout:                url("/oidc/logout"),
		Me:                    url("/scim2/Me"),
		Preference:            url("/api/server/v1/identity-governance/preferences"),
		ProfileSchemas:        url("/scim2/Schemas"),
		Revoke:                url("/oauth2/revoke"),
		Sessions:              url("/api/users/v1/me/sessions"),
		SMSOTPResend:          url("/api/identity/user/v1.0/me/resend-code"),
		SMSOTPValidate:        url("/api/identity/user/v1.0/me/validate-code"),
		Token:                 url("/oauth2/token"),
		TOTP:                  url("/api/users/v1/me/totp"),
		TOTPSecret:            url("/api/users/v1/me/totp/secret"),
		TypingDNAMe:           url("/api/identity/typingdna/v1.0/me/typingpatterns"),
		TypingDNAServer:       url("/api/identity/typingdna/v1.0/server/typingdnaConfig"),
		User:                  url("/api/identity/user/v1.0/me"),
		WellKnown:             url("/oauth2/oidcdiscovery/.well-known/openid-configuration"),
		ConsentManagement: ConsentManagementEndpoints{
			Consent: ConsentEndpoints{
				AddConsent:      url("/api/identity/consent-mgt/v1.0/consents"),
				ConsentReceipt:  url("/api/identity/consent-mgt/v1.0/consents/receipts"),
				ListAllConsents: url("/api/identity/consent-mgt/v1.0/consents"),
			},
			Purpose: PurposeEndpoints{
				GetPurpose: url("/api/identity/consent-mgt/v1.0/consents/purposes"),
				List:       url("/api/identity/consent-mgt/v1.0/consents/purposes"),
			},
		},
		HomeRealmIdentifiers: url("/api/server/v1/configs/home-realm-identifiers"),
		UserStores:           url("/api/server/v1/userstores"),
		UserStoreMetaTypes:   url("/api/server/v1/userstores/meta/types"),
		TestConnection:       url("/api/server/v1/userstores/test-connection"),
	}
}

// UI returns the UI view. The copyright placeholders are resolved against now.
func (a *Accessor) UI(now time.Time) UIConfig {
	ui := a.cfg.UI
	return UIConfig{
		Announcements:                ui.Announcements,
		AppName:                      ui.AppName,
		AppTitle:                     ui.AppTitle,
		AuthenticatorApp:             ui.AuthenticatorApp,
		CopyrightText:                CopyrightText(ui.AppCopyright, now),
		Features:                     ui.Features,
		I18nConfigs:                  ui.I18nConfigs,
		IsCookieConsentBannerEnabled: ui.IsCookieConsentBannerEnabled,
		IsHeaderAvatarLabelAllowed:   ui.IsHeaderAvatarLabelAllowed,
		IsProfileUsernameReadonly:    ui.IsProfileUsernameReadonly,
		PrivacyPolicyConfigs:         ui.PrivacyPolicyConfigs,
		ProductName:                  ui.ProductName,
		ProductVersionConfig:         ui.ProductVersionConfig,
		Theme:                        ui.Theme,
		DisableMFAForSuperTenantUser: ui.DisableMFAForSuperTenantUser,
		ShowAppSwitchButton:          ui.ShowAppSwitchButton,
	}
}

// I18n returns the i18n module view
func (a *Accessor) I18n() I18nConfig {
	i := a.cfg.I18n
	return I18nConfig{
		InitOptions: I18nInitOptions{
			FallbackLanguage: i.FallbackLanguage,
			DefaultNamespace: i.DefaultNamespace,
			Namespaces:       i.Namespaces,
		},
		LangAutoDetectEnabled:   i.LangAutoDetectEnabled,
		NamespaceDirectories:    i.NamespaceDirectories,
		OverrideOptions:         i.OverrideOptions,
		ResourcePath:            I18nResourcePath,
		XHRBackendPluginEnabled: i.XHRBackendPluginEnabled,
	}
}

// CopyrightText resolves the first ${copyright} and ${year} placeholders
func CopyrightText(template string, now time.Time) string {
	text := strings.Replace(template, "${copyright}", copyrightSymbol, 1)
	return strings.Replace(text, "${year}", strconv.Itoa(now.Year()), 1)
}
