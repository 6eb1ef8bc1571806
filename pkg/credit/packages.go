package credit

import "strings"

// Package is a purchasable credit bundle.
type Package struct {
	PackageID   string
	Name        string
	Credits     Credits
	PriceCents  int64
	Description string
	Features    []string
	Tier        Role
}

const proPackagePrefix = "pro_"

var packageCatalog = []Package{
	{
		PackageID:   "free_starter",
		Name:        "Starter Pack",
		Credits:     20,
		PriceCents:  499,
		Description: "Perfect for trying out the platform",
		Features:    []string{"Basic AI generation", "Email support", "1 day data retention"},
		Tier:        RoleFree,
	},
	{
		PackageID:   "free_basic",
		Name:        "Basic Pack",
		Credits:     50,
		PriceCents:  999,
		Description: "Great for regular use",
		Features:    []string{"Basic AI generation", "Email support", "1 day data retention"},
		Tier:        RoleFree,
	},
	{
		PackageID:   "pro_standard",
		Name:        "Pro Standard",
		Credits:     100,
		PriceCents:  1999,
		Description: "For power users",
		Features:    []string{"Advanced AI generation", "Priority support", "7 day data retention"},
		Tier:        RolePro,
	},
	{
		PackageID:   "pro_premium",
		Name:        "Pro Premium",
		Credits:     250,
		PriceCents:  3999,
		Description: "Maximum value pack",
		Features:    []string{"Advanced AI generation", "Priority support", "7 day data retention"},
		Tier:        RolePro,
	},
}

// Packages returns the full catalog.
func Packages() []Package {
	catalog := make([]Package, len(packageCatalog))
	copy(catalog, packageCatalog)
	return catalog
}

// PackagesFor returns the catalog entries offered to a role. Enterprise
// accounts have unlimited credits and are offered nothing.
func PackagesFor(role Role) []Package {
	var offered []Package
	for _, bundle := range packageCatalog {
		if bundle.Tier == role {
			offered = append(offered, bundle)
		}
	}
	if role == RoleEnterprise {
		return nil
	}
	return offered
}

// LookupPackage finds a catalog entry by id.
func LookupPackage(packageID string) (Package, bool) {
	for _, bundle := range packageCatalog {
		if bundle.PackageID == packageID {
			return bundle, true
		}
	}
	return Package{}, false
}

// ValidatePurchase reports whether a role may buy a package. Free accounts
// may buy any package, pro accounts only pro packages, enterprise none.
func ValidatePurchase(packageID string, role Role) bool {
	if _, ok := LookupPackage(packageID); !ok {
		return false
	}
	switch role {
	case RoleFree:
		return true
	case RolePro:
		return strings.HasPrefix(packageID, proPackagePrefix)
	}
	return false
}
