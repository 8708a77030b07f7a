// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package serial

import (
	"fmt"

	"go.bug.st/serial/enumerator"
)

// PortInfo describes a serial port found on the host.
type PortInfo struct {
	Name    string
	Product string
	IsUSB   bool
	VID     string
	PID     string
}

// ListPorts returns the serial ports present on the host.
func ListPorts() ([]PortInfo, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, err
	}
	result := make([]PortInfo, 0, len(ports))
	for _, port := range ports {
		result = append(result, PortInfo{
			Name:    port.Name,
			Product: port.Product,
			IsUSB:   port.IsUSB,
			VID:     port.VID,
			PID:     port.PID,
		})
	}
	return result, nil
}

// FindByProduct returns the first port whose USB product name equals product.
func FindByProduct(product string) (string, error) {
	ports, err := ListPorts()
	if err != nil {
		return "", err
	}
	if name, ok := matchProduct(ports, product); ok {
		return name, nil
	}
	return "", fmt.Errorf("no serial port with product %q", product)
}

func matchProduct(ports []PortInfo, product string) (string, bool) {
	for _, port := range ports {
		if port.IsUSB && port.Product == product {
			return port.Name, true
		}
	}
	return "", false
}
