package backend

import (
	"fmt"

	"github.com/qfold-team/qfold-engine/common"
	"github.com/qfold-team/qfold-engine/core"
	"github.com/qfold-team/qfold-engine/qasm"
	"go.uber.org/zap"
)

func validateProgram(program string, ds *DeviceSetting) error {
	if program == "" {
		msg := "no input qasm"
		zap.L().Info(msg)
		return fmt.Errorf(msg)
	}
	tape, err := qasm.Parse(program)
	if err != nil {
		zap.L().Info(err.Error())
		return err
	}
	if err := validateGates(tape, ds.GateSupport); err != nil {
		zap.L().Info(err.Error())
		return err
	}
	di := core.GetSystemComponents().GetDeviceInfo()
	if di.Status != core.Available {
		msg := fmt.Sprintf("device is not available. status:%s", di.Status)
		zap.L().Info(msg)
		return fmt.Errorf(msg)
	} else {
		if err := checkResource(tape, di.MaxQubits); err != nil {
			zap.L().Info(err.Error())
			return err
		}
	}
	return nil
}

func validateGates(t *core.Tape, gateSupport *GateSupport) error {
	if gateSupport == nil {
		return nil
	}
	if gateSupport.AllowList.Enabled {
		if err := filterList(t, gateSupport.AllowList.Gates, false); err != nil {
			zap.L().Info(fmt.Sprintf("[AllowList Error] %s", err.Error()))
			return err
		}
	}
	if gateSupport.DenyList.Enabled {
		if err := filterList(t, gateSupport.DenyList.Gates, true); err != nil {
			zap.L().Info(fmt.Sprintf("[DenyList Error] %s", err.Error()))
			return err
		}
	}
	return nil
}

func filterList(t *core.Tape, list []*GateType, returnIfFiltered bool) error {
	errFunc := func(gate string) error {
		return fmt.Errorf("gate:%s is not supported", gate)
	}

	gateList := []string{}
	for _, gt := range list {
		gateList = append(gateList, gt.Name)
	}
	for _, op := range t.Ops {
		n := op.GateName()
		// TODO optimize
		if returnIfFiltered {
			// DenyList
			if common.ContainsGateName(n, gateList) {
				return errFunc(n)
			}
		} else {
			// AllowList
			if !common.ContainsGateName(n, gateList) {
				return errFunc(n)
			}
		}
	}
	return nil
}

func checkResource(t *core.Tape, qubitNumber int) error {
	if t.Wires > qubitNumber {
		return fmt.Errorf("Too many quibits in your circuit. We only have %d qubits.", qubitNumber)
	}
	return nil
}
